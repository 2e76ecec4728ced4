// Package canonical provides deterministic byte encodings and the SHA-256
// digests derived from them. Everything in the pipeline that needs a
// byte-stable hash goes through here: the conflator's deduplication
// signatures, the audit ledger's hash chain, and the config loader's
// merged-document digest.
//
// Determinism rules:
//   - map keys are emitted in sorted order, recursively
//   - slice order is preserved
//   - numbers decoded with json.Number are emitted as their original token
//   - all hashes are lowercase hex SHA-256
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrTooLarge      = errors.New("canonical: output exceeds max bytes")
	ErrUnsupported   = errors.New("canonical: unsupported value")
	ErrNotCanonical  = errors.New("canonical: not a canonical hex digest")
)

// Genesis is the fixed previous-hash value for the first link of any chain.
const Genesis = "GENESIS"

// Marshal returns deterministic JSON for v. Structs and other typed values
// are first round-tripped through encoding/json so their tags apply, then
// re-encoded with sorted keys.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, doc, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes deterministic JSON for an already-decoded document tree,
// bounded by maxBytes (0 means unbounded). The config loader uses this for
// its merged-bundle digest without a second decode pass.
func Encode(doc map[string]any, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, doc, maxBytes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sum returns the lowercase hex SHA-256 of b.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// SumJSON is Marshal followed by Sum.
func SumJSON(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Sum(b), nil
}

// HashAttributes folds a string-attribute map into one digest, keys sorted,
// each key and value NUL-terminated so adjacent fields cannot collide. An
// empty or nil map hashes to the empty string.
func HashAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(attrs[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChainStep folds payload into a running hash chain. An empty prev starts a
// new chain from Genesis. The previous hash is included in the digest so a
// rewritten link invalidates every later link.
func ChainStep(prev string, payload []byte) string {
	prev = strings.TrimSpace(prev)
	if prev == "" {
		prev = Genesis
	}
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte("\n"))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateDigest checks that s is a 64-character lowercase hex digest.
func ValidateDigest(s string) error {
	if len(s) != 64 {
		return ErrNotCanonical
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			continue
		}
		return ErrNotCanonical
	}
	return nil
}

var numberToken = [256]bool{}

func init() {
	for _, c := range "0123456789+-.eE" {
		numberToken[c] = true
	}
}

func encode(buf *bytes.Buffer, v any, maxBytes int64) error {
	write := func(b []byte) error {
		if maxBytes > 0 && int64(buf.Len()+len(b)) > maxBytes {
			return ErrTooLarge
		}
		buf.Write(b)
		return nil
	}
	switch x := v.(type) {
	case nil:
		return write([]byte("null"))
	case bool:
		if x {
			return write([]byte("true"))
		}
		return write([]byte("false"))
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return write(b)
	case json.Number:
		s := strings.TrimSpace(x.String())
		if s == "" || !isNumberToken(s) {
			return write([]byte("null"))
		}
		return write([]byte(s))
	case int:
		return write([]byte(strconv.FormatInt(int64(x), 10)))
	case int64:
		return write([]byte(strconv.FormatInt(x, 10)))
	case uint64:
		return write([]byte(strconv.FormatUint(x, 10)))
	case float64:
		return write([]byte(strconv.FormatFloat(x, 'g', -1, 64)))
	case []any:
		if err := write([]byte("[")); err != nil {
			return err
		}
		for i := range x {
			if i > 0 {
				if err := write([]byte(",")); err != nil {
					return err
				}
			}
			if err := encode(buf, x[i], maxBytes); err != nil {
				return err
			}
		}
		return write([]byte("]"))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := write([]byte("{")); err != nil {
			return err
		}
		for i, k := range keys {
			if i > 0 {
				if err := write([]byte(",")); err != nil {
					return err
				}
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnsupported, err)
			}
			if err := write(kb); err != nil {
				return err
			}
			if err := write([]byte(":")); err != nil {
				return err
			}
			if err := encode(buf, x[k], maxBytes); err != nil {
				return err
			}
		}
		return write([]byte("}"))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("%w: %T", ErrUnsupported, v)
		}
		return write(b)
	}
}

func isNumberToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if !numberToken[s[i]] {
			return false
		}
	}
	return true
}
