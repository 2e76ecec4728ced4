package cas

import (
	"context"
	"testing"
)

func TestKeyIsDeterministicAndDigestAddressed(t *testing.T) {
	data := []byte("hello venue pipeline")
	k1 := Key(data)
	k2 := Key(data)
	if k1 != k2 {
		t.Fatalf("Key not deterministic: %s != %s", k1, k2)
	}
	if Key([]byte("different")) == k1 {
		t.Fatalf("different inputs produced the same key")
	}
	if _, err := ParseDigest(k1); err != nil {
		t.Fatalf("ParseDigest(%s): %v", k1, err)
	}
}

func TestParseDigestRejectsMalformedKeys(t *testing.T) {
	cases := []string{
		"",
		"sha256:abc",
		"cas:sha256:",
		"cas:sha256:not-hex-not-hex-not-hex-not-hex-not-hex-not-hex-not-hex-not-h",
		"cas:sha256:deadbeef",
	}
	for _, c := range cases {
		if _, err := ParseDigest(c); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestFSStorePutGetHas(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	data := []byte(`{"event":"show"}`)
	key, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != Key(data) {
		t.Fatalf("Put returned key %s, want %s", key, Key(data))
	}

	has, err := s.Has(ctx, key)
	if err != nil || !has {
		t.Fatalf("Has: %v, %v", has, err)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
}

func TestFSStorePutIsIdempotent(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()
	data := []byte("repeated payload")

	k1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	k2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("idempotent put produced different keys: %s vs %s", k1, k2)
	}
}

func TestFSStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()
	_, err = s.Get(ctx, Key([]byte("never written")))
	if err == nil {
		t.Fatalf("expected ErrNotFound")
	}
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFSStoreHasMissingReturnsFalse(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()
	has, err := s.Has(ctx, Key([]byte("never written")))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Fatalf("expected Has to report false for missing key")
	}
}
