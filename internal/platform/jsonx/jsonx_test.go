package jsonx

import "testing"

type payload struct {
	Name  string `json:"name"`
	Items []int  `json:"items"`
}

func TestDecodeObject_CleanJSON(t *testing.T) {
	var p payload
	if err := DecodeObject(`{"name":"a","items":[1,2]}`, &p); err != nil {
		t.Fatalf("decode clean: %v", err)
	}
	if p.Name != "a" || len(p.Items) != 2 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeObject_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"name\":\"fenced\",\"items\":[3]}\n```"
	var p payload
	if err := DecodeObject(raw, &p); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if p.Name != "fenced" {
		t.Fatalf("got name %q", p.Name)
	}
}

func TestDecodeObject_SurroundingProse(t *testing.T) {
	raw := `Here is the result you asked for:
{"name":"prose","items":[]}
Let me know if you need changes.`
	var p payload
	if err := DecodeObject(raw, &p); err != nil {
		t.Fatalf("decode with prose: %v", err)
	}
	if p.Name != "prose" {
		t.Fatalf("got name %q", p.Name)
	}
}

func TestDecodeObject_TruncatedArray(t *testing.T) {
	raw := `{"name":"cut","items":[1,2,`
	var p payload
	if err := DecodeObject(raw, &p); err != nil {
		t.Fatalf("decode truncated: %v", err)
	}
	if p.Name != "cut" || len(p.Items) != 2 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeObject_TrailingComma(t *testing.T) {
	raw := `{"name":"tail","items":[1],`
	var p payload
	if err := DecodeObject(raw, &p); err != nil {
		t.Fatalf("decode trailing comma: %v", err)
	}
	if p.Name != "tail" {
		t.Fatalf("got name %q", p.Name)
	}
}

func TestDecodeObject_Garbage(t *testing.T) {
	var p payload
	if err := DecodeObject("not json at all", &p); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
	if err := DecodeObject("", &p); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestRepair_IgnoresBracketsInStrings(t *testing.T) {
	raw := `{"name":"has { and [ inside","items":[1]`
	var p payload
	if err := DecodeObject(raw, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "has { and [ inside" {
		t.Fatalf("got name %q", p.Name)
	}
}
