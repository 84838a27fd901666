package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\"a\":1}\n```  ", "{\"a\":1}"},
	}
	for _, c := range cases {
		if got := string(StripFences([]byte(c.in))); got != c.want {
			t.Fatalf("StripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUnmarshalModelDoubleEncoded(t *testing.T) {
	var out map[string]int
	raw, _ := json.Marshal(`{"a":1}`)
	if err := UnmarshalModel(raw, &out); err != nil {
		t.Fatalf("unmarshal double-encoded: %v", err)
	}
	if out["a"] != 1 {
		t.Fatalf("got %v", out)
	}
}

func TestUnmarshalModelRejectsNonJSON(t *testing.T) {
	var out map[string]any
	if err := UnmarshalModel(json.RawMessage("I am not JSON"), &out); err == nil {
		t.Fatal("expected parse error for non-JSON payload")
	}
}

func TestMarshalNoEscapeKeepsURLsVerbatim(t *testing.T) {
	got, err := MarshalNoEscape(map[string]string{"url": "https://kb/a?x=1&y=<2>"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"url":"https://kb/a?x=1&y=<2>"}` {
		t.Fatalf("unexpected encoding %s", got)
	}
}
