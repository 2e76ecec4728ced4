package canonical

import (
	"strings"
	"testing"
)

func TestMarshal_SortsMapKeys(t *testing.T) {
	got, err := Marshal(map[string]any{"zebra": 1, "apple": 2, "mid": map[string]any{"b": true, "a": false}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"apple":2,"mid":{"a":false,"b":true},"zebra":1}`
	if string(got) != want {
		t.Fatalf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_StructTagsApply(t *testing.T) {
	type rec struct {
		Name string `json:"name"`
		Day  string `json:"event_day,omitempty"`
	}
	got, err := Marshal(rec{Name: "Open Mic"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"name":"Open Mic"}` {
		t.Fatalf("Marshal = %s", got)
	}
}

func TestMarshal_NumberTokensPreserved(t *testing.T) {
	got, err := Marshal(map[string]any{"lat": 47.6608, "n": 12})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(got), "47.6608") {
		t.Fatalf("expected float token preserved, got %s", got)
	}
}

func TestEncode_MaxBytes(t *testing.T) {
	doc := map[string]any{"k": strings.Repeat("x", 100)}
	if _, err := Encode(doc, 16); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := Encode(doc, 0); err != nil {
		t.Fatalf("unbounded Encode: %v", err)
	}
}

func TestHashAttributes_OrderIndependent(t *testing.T) {
	a := HashAttributes(map[string]string{"name_lower": "blue moon tavern", "city": "Seattle"})
	b := HashAttributes(map[string]string{"city": "Seattle", "name_lower": "blue moon tavern"})
	if a == "" || a != b {
		t.Fatalf("HashAttributes not deterministic: %q vs %q", a, b)
	}
	if err := ValidateDigest(a); err != nil {
		t.Fatalf("ValidateDigest: %v", err)
	}
}

func TestHashAttributes_FieldBoundaries(t *testing.T) {
	a := HashAttributes(map[string]string{"ab": "c"})
	b := HashAttributes(map[string]string{"a": "bc"})
	if a == b {
		t.Fatal("adjacent-field collision")
	}
}

func TestHashAttributes_Empty(t *testing.T) {
	if got := HashAttributes(nil); got != "" {
		t.Fatalf("HashAttributes(nil) = %q, want empty", got)
	}
}

func TestChainStep_PrevLinked(t *testing.T) {
	first := ChainStep("", []byte("a"))
	second := ChainStep(first, []byte("b"))
	if second == ChainStep(Genesis, []byte("b")) {
		t.Fatal("second link ignored prev hash")
	}
	if first != ChainStep(Genesis, []byte("a")) {
		t.Fatal("empty prev should start from Genesis")
	}
}

func TestSumJSON_Stable(t *testing.T) {
	v := map[string]any{"b": 1, "a": "x"}
	h1, err := SumJSON(v)
	if err != nil {
		t.Fatalf("SumJSON: %v", err)
	}
	h2, _ := SumJSON(map[string]any{"a": "x", "b": 1})
	if h1 != h2 {
		t.Fatalf("SumJSON unstable: %q vs %q", h1, h2)
	}
	if err := ValidateDigest(h1); err != nil {
		t.Fatalf("ValidateDigest: %v", err)
	}
}

func TestValidateDigest_Rejects(t *testing.T) {
	for _, bad := range []string{"", "abc", strings.Repeat("Z", 64), strings.Repeat("a", 63)} {
		if err := ValidateDigest(bad); err == nil {
			t.Fatalf("ValidateDigest(%q) accepted", bad)
		}
	}
}
