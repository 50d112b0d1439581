package canonicalize

import "testing"

func TestJCS_SortsKeys(t *testing.T) {
	in := map[string]interface{}{"b": 2, "a": 1}
	out, err := JCS(in)
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	if string(out) != `{"a":1,"b":2}` {
		t.Fatalf("got %s", out)
	}
}

func TestJCS_Nested(t *testing.T) {
	in := map[string]interface{}{
		"x": map[string]interface{}{"z": 10, "y": 5},
	}
	out, err := JCS(in)
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	if string(out) != `{"x":{"y":5,"z":10}}` {
		t.Fatalf("got %s", out)
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1}
	b := map[string]interface{}{"a": 1, "b": 2}
	ha, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("hash mismatch for equivalent maps: %s vs %s", ha, hb)
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	out, err := JCS("a<b&c")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"a<b&c"` {
		t.Fatalf("got %s", out)
	}
}
