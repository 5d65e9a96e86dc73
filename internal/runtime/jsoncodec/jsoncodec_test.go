package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type editorConfig struct {
	FontFamily string `json:"fontFamily"`
	FontSize   int    `json:"fontSize"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := editorConfig{FontFamily: "Consolas, monospace", FontSize: 14}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out editorConfig
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"fontFamily\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := editorConfig{FontFamily: "Fira Code", FontSize: 13}

	if err := Encode(buf, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded editorConfig
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != payload {
		t.Fatalf("expected decoded payload to match, got %#v", decoded)
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"type":"ready"}`)) {
		t.Fatal("expected object to be valid")
	}
	if Valid([]byte(`{"type":`)) {
		t.Fatal("expected truncated input to be invalid")
	}
}
