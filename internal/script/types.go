/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import "fmt"

// Script is a parsed edit script: one step per non-blank, non-comment line.
//
// Syntax (one command per line, arguments separated by spaces, "quoted strings" allowed):
//
//	crop X Y W H [aspect=R]
//	resize W H | resize preset "Instagram Post"
//	adjust brightness=20 hue=-45 | adjust reset
//	text "Hello" [font=Georgia size=48 color=#ff0000 align=center bold italic underline]
//	style [font=... size=... color=... align=... bold italic underline]
//	background color #336699 | clear | remove | change "prompt" | stock "query" [index=N]
//	extend left|right|top|bottom [amount=PX]
//	retouch ai_retouch|ai_upscale|enhance_sharpen|premium_quality
//	tool NAME
//	select image|text|none|OBJECT-ID
//	delete
//	undo [N] | redo [N]
//	save
//
// Lines starting with "#" or ";" are comments. A line indented by two or more spaces
// continues the text content of the previous text step.
type Script struct {
	Steps []Step
}

// Command is a script verb.
type Command string

const (
	CmdTool       Command = "tool"
	CmdCrop       Command = "crop"
	CmdResize     Command = "resize"
	CmdAdjust     Command = "adjust"
	CmdText       Command = "text"
	CmdStyle      Command = "style"
	CmdBackground Command = "background"
	CmdExtend     Command = "extend"
	CmdRetouch    Command = "retouch"
	CmdSelect     Command = "select"
	CmdDelete     Command = "delete"
	CmdUndo       Command = "undo"
	CmdRedo       Command = "redo"
	CmdSave       Command = "save"
)

// Step is one command with its positional arguments and key=value options.
// Bare words listed as flags for a command (bold, italic, underline) are stored in Opts
// with an empty value.
type Step struct {
	Command Command
	Args    []string
	Opts    map[string]string
	LineNo  int // 1-based line number in the source
}

// Opt returns the option value and whether it was given.
func (s Step) Opt(key string) (string, bool) {
	v, ok := s.Opts[key]
	return v, ok
}

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message) }
