/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"pixnoma/internal/domain"
	"pixnoma/internal/scene"
)

func sampleScene() scene.Scene {
	img := scene.NewImage("https://ik.example/a.jpg", 1200, 800)
	img.OriginX, img.OriginY = scene.OriginCenter, scene.OriginCenter
	img.Left, img.Top, img.ScaleX, img.ScaleY, img.Angle = 600, 400, 0.75, 0.5, 12.5
	img.Image.Crop = &scene.Rect{X: 300, Y: 200, W: 600, H: 400}
	img.Image.Filters = []scene.Filter{{Kind: scene.FilterBrightness, Value: 0.2}, {Kind: scene.FilterHue, Value: -1.5}}

	txt := scene.NewText(scene.Text{Content: "Hello\nWorld", FontFamily: "Georgia", FontSize: 48, Fill: "#ff0000", TextAlign: "center", Bold: true, Underline: true})
	txt.Left, txt.Top, txt.Selectable = 10, 20, false

	bg := scene.NewImage("https://stock.example/bg.jpg", 3000, 2000)
	bg.ScaleX, bg.ScaleY = 0.4, 0.4
	return scene.Scene{Width: 1200, Height: 800, Background: scene.Background{Image: bg}, Objects: []*scene.Object{img, txt}}
}

func TestRoundTripPreservesAttributes(t *testing.T) {
	in := sampleScene()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data, 0, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Width != 1200 || out.Height != 800 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
	if len(out.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(out.Objects))
	}
	for i, want := range in.Objects {
		got := out.Objects[i]
		if got.ID != want.ID || got.Kind != want.Kind || got.Transform != want.Transform {
			t.Fatalf("object %d header = %+v, want %+v", i, got, want)
		}
	}
	gi, wi := out.Objects[0].Image, in.Objects[0].Image
	if gi.Src != wi.Src || gi.Width != wi.Width || gi.Height != wi.Height || *gi.Crop != *wi.Crop {
		t.Fatalf("image = %+v, want %+v", gi, wi)
	}
	if len(gi.Filters) != 2 || gi.Filters[0] != wi.Filters[0] || gi.Filters[1] != wi.Filters[1] {
		t.Fatalf("filters = %+v, want %+v", gi.Filters, wi.Filters)
	}
	if *out.Objects[1].Text != *in.Objects[1].Text {
		t.Fatalf("text = %+v, want %+v", out.Objects[1].Text, in.Objects[1].Text)
	}
	if out.Background.Image == nil || out.Background.Image.ScaleX != 0.4 || out.Background.Color != "" {
		t.Fatalf("background = %+v", out.Background)
	}
	again, _ := Encode(out)
	if !bytes.Equal(again, data) {
		t.Fatalf("re-encoding differs:\n%s\n%s", data, again)
	}
}

func TestEncodeDropsShapes(t *testing.T) {
	sc := scene.Scene{Width: 10, Height: 10, Objects: []*scene.Object{scene.NewShape(scene.R(0, 0, 5, 5), scene.Shape{})}}
	data, err := Encode(sc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Contains(data, []byte(`"objects":[]`)) {
		t.Fatalf("shape persisted: %s", data)
	}
}

func TestDecodeDefaultsMissingFields(t *testing.T) {
	doc := `{"backgroundColor":"#ffffff","objects":[{"type":"image","src":"x.png","width":10,"height":5,"futureKey":{"a":1}},{"type":"textbox","text":"hi"}]}`
	sc, err := Decode([]byte(doc), 640, 480)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sc.Width != 640 || sc.Height != 480 || sc.Background.Color != "#ffffff" {
		t.Fatalf("scene = %+v", sc)
	}
	img := sc.Objects[0]
	if img.ScaleX != 1 || img.ScaleY != 1 || !img.Selectable || !img.Evented || img.OriginX != scene.OriginLeft {
		t.Fatalf("defaults not applied: %+v", img.Transform)
	}
	if img.ID == "" {
		t.Fatalf("missing id should be generated")
	}
	txt := sc.Objects[1].Text
	if txt.FontSize != 20 || txt.Fill != "#000000" || txt.FontFamily != "Arial" || txt.TextAlign != "left" {
		t.Fatalf("text defaults = %+v", txt)
	}
}

func TestDecodeSkipsUnknownTypesAndFilters(t *testing.T) {
	doc := `{"width":5,"height":5,"objects":[{"type":"circle"},{"type":"image","src":"a","filters":[{"kind":"sepia","value":1},{"type":"Blur","value":0.3}]}]}`
	sc, err := Decode([]byte(doc), 0, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sc.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(sc.Objects))
	}
	fs := sc.Objects[0].Image.Filters
	if len(fs) != 1 || fs[0].Kind != scene.FilterBlur || fs[0].Value != 0.3 {
		t.Fatalf("filters = %+v", fs)
	}
}

func TestDecodeFontWeightNumeric(t *testing.T) {
	sc, err := Decode([]byte(`{"width":5,"height":5,"objects":[{"type":"text","text":"x","fontWeight":700}]}`), 0, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !sc.Objects[0].Text.Bold {
		t.Fatalf("numeric 700 should decode as bold")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":       ``,
		"not json":    `{"objects":`,
		"objects map": `{"width":1,"height":1,"objects":{"a":1}}`,
		"no type":     `{"width":1,"height":1,"objects":[{"left":1}]}`,
		"bad width":   `{"width":0,"height":1,"objects":[]}`,
		"no size":     `{"objects":[]}`,
	}
	for name, doc := range cases {
		if _, err := Decode([]byte(doc), 0, 0); !errors.Is(err, domain.ErrReplay) {
			t.Fatalf("%s: err = %v, want ErrReplay", name, err)
		}
	}
}

func TestEncodeRejectsMissingPayload(t *testing.T) {
	bad := &scene.Object{ID: "x", Kind: scene.KindImage, Transform: scene.DefaultTransform()}
	if _, err := Encode(scene.Scene{Width: 1, Height: 1, Objects: []*scene.Object{bad}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
