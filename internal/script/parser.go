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

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type token struct {
	text   string
	col    int // 1-based
	key    string
	quoted bool
}

var (
	reToken = regexp.MustCompile(`[A-Za-z_]+="(?:[^"\\]|\\.)*"|"(?:[^"\\]|\\.)*"|\S+`)
	reOpt   = regexp.MustCompile(`^([A-Za-z_]+)=(.*)$`)
)

func unquote(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u, true
		}
		return s[1 : len(s)-1], true
	}
	return s, false
}

func tokenize(line string) []token {
	var out []token
	for _, ix := range reToken.FindAllStringIndex(line, -1) {
		raw := line[ix[0]:ix[1]]
		tk := token{col: ix[0] + 1}
		if m := reOpt.FindStringSubmatch(raw); m != nil && !strings.HasPrefix(raw, `"`) {
			tk.key = strings.ToLower(m[1])
			tk.text, tk.quoted = unquote(m[2])
		} else {
			tk.text, tk.quoted = unquote(raw)
		}
		out = append(out, tk)
	}
	return out
}

type argKind int

const (
	argString argKind = iota
	argNumber
	argInt
	argFlag
)

// rule describes the accepted shape of one command.
type rule struct {
	min, max int
	opts     map[string]argKind
}

var textOpts = map[string]argKind{
	"font": argString, "size": argNumber, "color": argString, "align": argString,
	"bold": argFlag, "italic": argFlag, "underline": argFlag,
}

var rules = map[Command]rule{
	CmdTool:       {min: 1, max: 1},
	CmdCrop:       {min: 4, max: 4, opts: map[string]argKind{"aspect": argNumber}},
	CmdResize:     {min: 2, max: 2},
	CmdAdjust:     {min: 0, max: 1, opts: adjustOpts},
	CmdText:       {min: 1, max: 1, opts: textOpts},
	CmdStyle:      {min: 0, max: 0, opts: textOpts},
	CmdBackground: {min: 1, max: 2, opts: map[string]argKind{"index": argInt}},
	CmdExtend:     {min: 1, max: 1, opts: map[string]argKind{"amount": argInt}},
	CmdRetouch:    {min: 1, max: 1},
	CmdSelect:     {min: 1, max: 1},
	CmdDelete:     {},
	CmdUndo:       {min: 0, max: 1},
	CmdRedo:       {min: 0, max: 1},
	CmdSave:       {},
}

var adjustOpts = map[string]argKind{
	"brightness": argNumber, "contrast": argNumber, "saturation": argNumber,
	"vibrance": argNumber, "blur": argNumber, "hue": argNumber,
}

// backgroundArgs maps each background action to whether it takes a value.
var backgroundArgs = map[string]bool{"color": true, "clear": false, "remove": false, "change": true, "stock": true}

// Parse parses an edit script into steps. Every line is checked; all errors are returned
// together with the steps that parsed cleanly.
func Parse(input string) (Script, []Error) {
	s := Script{Steps: []Step{}}
	var errs []Error

	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	var lastText *Step

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		// Continuation line (indented) -> append to the previous text content
		if strings.HasPrefix(line, "  ") && lastText != nil {
			if cont := strings.TrimSpace(line); cont != "" {
				lastText.Args[0] += "\n" + cont
			}
			continue
		}

		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") || strings.HasPrefix(trim, ";") {
			lastText = nil
			continue
		}

		toks := tokenize(line)
		st, lineErrs := parseStep(lineNo, toks)
		lastText = nil
		if len(lineErrs) > 0 {
			errs = append(errs, lineErrs...)
			continue
		}
		s.Steps = append(s.Steps, st)
		if st.Command == CmdText {
			lastText = &s.Steps[len(s.Steps)-1]
		}
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
	}
	return s, errs
}

func parseStep(lineNo int, toks []token) (Step, []Error) {
	errf := func(col int, format string, args ...any) Error {
		return Error{Line: lineNo, Column: col, Message: fmt.Sprintf(format, args...)}
	}
	head := toks[0]
	cmd := Command(strings.ToLower(head.text))
	r, ok := rules[cmd]
	if !ok || head.key != "" || head.quoted {
		return Step{}, []Error{errf(head.col, "unknown command %q", head.text)}
	}
	st := Step{Command: cmd, LineNo: lineNo, Opts: map[string]string{}}
	var errs []Error
	var argCols []int
	for _, tk := range toks[1:] {
		kind, isFlag := r.opts[strings.ToLower(tk.text)]
		switch {
		case tk.key != "":
			k, known := r.opts[tk.key]
			if !known || k == argFlag {
				errs = append(errs, errf(tk.col, "%s: unknown option %q", cmd, tk.key))
				continue
			}
			if err := checkKind(k, tk.text); err != "" {
				errs = append(errs, errf(tk.col, "%s: option %s %s", cmd, tk.key, err))
				continue
			}
			st.Opts[tk.key] = tk.text
		case isFlag && kind == argFlag && !tk.quoted:
			st.Opts[strings.ToLower(tk.text)] = ""
		default:
			st.Args = append(st.Args, tk.text)
			argCols = append(argCols, tk.col)
		}
	}
	if len(errs) > 0 {
		return Step{}, errs
	}
	endCol := toks[len(toks)-1].col
	if len(st.Args) < r.min {
		return Step{}, []Error{errf(endCol, "%s: expected at least %d argument(s), got %d", cmd, r.min, len(st.Args))}
	}
	if len(st.Args) > r.max {
		return Step{}, []Error{errf(argCols[r.max], "%s: unexpected argument %q", cmd, st.Args[r.max])}
	}
	if e, bad := checkArgs(st, argCols); bad {
		e.Line = lineNo
		return Step{}, []Error{e}
	}
	return st, nil
}

func checkKind(k argKind, v string) string {
	switch k {
	case argNumber:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "must be a number"
		}
	case argInt:
		if _, err := strconv.Atoi(v); err != nil {
			return "must be an integer"
		}
	}
	return ""
}

// checkArgs validates positional arguments per command.
func checkArgs(st Step, cols []int) (Error, bool) {
	bad := func(i int, msg string) (Error, bool) {
		return Error{Column: cols[i], Message: fmt.Sprintf("%s: %s", st.Command, msg)}, true
	}
	switch st.Command {
	case CmdCrop:
		for i, a := range st.Args {
			if checkKind(argNumber, a) != "" {
				return bad(i, fmt.Sprintf("argument %q must be a number", a))
			}
		}
	case CmdResize:
		if strings.EqualFold(st.Args[0], "preset") {
			return Error{}, false
		}
		for i, a := range st.Args {
			if checkKind(argInt, a) != "" {
				return bad(i, fmt.Sprintf("argument %q must be an integer or \"preset NAME\"", a))
			}
		}
	case CmdAdjust:
		if len(st.Args) == 1 && !strings.EqualFold(st.Args[0], "reset") {
			return bad(0, fmt.Sprintf("unexpected argument %q", st.Args[0]))
		}
		if len(st.Args) == 0 && len(st.Opts) == 0 {
			return Error{Column: 1, Message: "adjust: nothing to adjust"}, true
		}
	case CmdBackground:
		action := strings.ToLower(st.Args[0])
		takesValue, known := backgroundArgs[action]
		if !known {
			return bad(0, fmt.Sprintf("unknown action %q", st.Args[0]))
		}
		if takesValue != (len(st.Args) == 2) {
			if takesValue {
				return bad(0, fmt.Sprintf("%s needs a value", action))
			}
			return bad(1, fmt.Sprintf("%s takes no value", action))
		}
		if _, ok := st.Opts["index"]; ok && action != "stock" {
			return Error{Column: cols[0], Message: "background: index only applies to stock"}, true
		}
	case CmdUndo, CmdRedo:
		if len(st.Args) == 1 {
			if n, err := strconv.Atoi(st.Args[0]); err != nil || n < 1 {
				return bad(0, fmt.Sprintf("count %q must be a positive integer", st.Args[0]))
			}
		}
	}
	return Error{}, false
}
