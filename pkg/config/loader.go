package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nspilman/sms-venue-pipeline/pkg/canonical"
)

// Loader reads the pipeline's runtime configuration from a filesystem root
// with deterministic layering. The pipeline is operated as a single binary,
// so the layout is one document per tier:
//
//	<root>/<service>.json|yaml|yml          base
//	<root>/env/<env>/<service>.json|yaml|yml  environment override
//
// Merge order is base -> env -> env-var overrides; later layers win, folded
// through MergeMany so array/type-conflict handling matches the rest of the
// config tree tooling.
//
// Env-var overrides use EnvPrefix (default UPPER(service)+"_") and
// PathDelimiter (default "__") for nesting:
//
//	SMSCTL_GATEWAY__BYPASS_CADENCE=true => {"gateway":{"bypass_cadence":true}}
//
// Values parse as JSON when they can, otherwise they stay strings.
type Loader struct {
	rootAbs string
	opts    Options

	reSegment *regexp.Regexp
}

// Options configures a Loader. Service is required; everything else has a
// working default.
type Options struct {
	Service string
	Env     string

	// ExplicitPath, when set, loads only that one document (relative to
	// root, or absolute but still inside root).
	ExplicitPath string

	DisableEnvOverrides bool
	EnvPrefix           string
	PathDelimiter       string

	MaxFileBytes      int64
	MaxDepth          int
	MaxEnvVars        int
	MaxCanonicalBytes int64

	// OnWarn receives non-fatal skips (bad env segments, oversized values).
	// Nil-safe.
	OnWarn func(code, detail string)
}

// Document is one loaded tier with its provenance: where it came from,
// which tier it occupies, and the digest of its raw bytes.
type Document struct {
	Path     string         `json:"path"`
	Tier     string         `json:"tier"`
	LoadedAt time.Time      `json:"loaded_at"`
	SHA256   string         `json:"sha256"`
	Data     map[string]any `json:"data"`
}

// Bundle is the merged result of a Load, keeping the per-tier documents for
// diagnostics.
type Bundle struct {
	Service  string         `json:"service"`
	Env      string         `json:"env,omitempty"`
	Docs     []Document     `json:"docs"`
	Merged   map[string]any `json:"merged"`
	LoadedAt time.Time      `json:"loaded_at"`

	maxCanonicalBytes int64
}

var (
	ErrInvalidRoot    = errors.New("config: invalid root")
	ErrInvalidOptions = errors.New("config: invalid options")
	ErrPathEscape     = errors.New("config: path escapes root")
	ErrNotFound       = errors.New("config: not found")
	ErrFileTooLarge   = errors.New("config: file too large")
	ErrUnsupportedExt = errors.New("config: unsupported extension")
	ErrInvalidDoc     = errors.New("config: invalid document")
	ErrNotObject      = errors.New("config: top-level must be object")
	ErrEnvOverride    = errors.New("config: env override invalid")
)

// NewLoader validates root and opts and returns a Loader.
func NewLoader(root string, opts Options) (*Loader, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, ErrInvalidRoot
	}
	opts.Service = strings.TrimSpace(opts.Service)
	if opts.Service == "" {
		return nil, fmt.Errorf("%w: service required", ErrInvalidOptions)
	}
	opts.Env = strings.TrimSpace(opts.Env)
	opts.ExplicitPath = strings.TrimSpace(opts.ExplicitPath)

	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 2 * 1024 * 1024
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 32
	}
	if opts.MaxEnvVars <= 0 {
		opts.MaxEnvVars = 256
	}
	if opts.MaxCanonicalBytes <= 0 {
		opts.MaxCanonicalBytes = 4 * 1024 * 1024
	}
	if opts.PathDelimiter == "" {
		opts.PathDelimiter = "__"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = strings.ToUpper(opts.Service) + "_"
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	absEval, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(absEval)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory", ErrInvalidRoot)
	}

	return &Loader{
		rootAbs:   absEval,
		opts:      opts,
		reSegment: regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`),
	}, nil
}

func (l *Loader) warn(code, detail string) {
	if l != nil && l.opts.OnWarn != nil {
		l.opts.OnWarn(strings.TrimSpace(code), strings.TrimSpace(detail))
	}
}

// Load reads every present tier, merges them in tier order, and applies
// env-var overrides last.
func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var docs []Document
	if l.opts.ExplicitPath != "" {
		doc, err := l.loadTier(ctx, l.opts.ExplicitPath, "explicit")
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	} else {
		for _, tp := range l.tierPaths() {
			doc, err := l.loadTier(ctx, tp.path, tp.tier)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			docs = append(docs, *doc)
		}
	}

	layers := make([]map[string]any, 0, len(docs)+1)
	for i := range docs {
		layers = append(layers, docs[i].Data)
	}
	if !l.opts.DisableEnvOverrides {
		envLayer, err := l.envOverrides()
		if err != nil {
			return nil, err
		}
		if envLayer != nil {
			layers = append(layers, envLayer)
		}
	}

	merged, rep := MergeMany(layers, MergeOptions{MaxDepth: l.opts.MaxDepth})
	for _, w := range rep.Warnings {
		l.warn("merge."+w.Code, w.Path+" "+w.Msg)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Tier != docs[j].Tier {
			return tierRank(docs[i].Tier) < tierRank(docs[j].Tier)
		}
		return docs[i].Path < docs[j].Path
	})

	return &Bundle{
		Service:           l.opts.Service,
		Env:               l.opts.Env,
		Docs:              docs,
		Merged:            merged,
		LoadedAt:          time.Now().UTC(),
		maxCanonicalBytes: l.opts.MaxCanonicalBytes,
	}, nil
}

// LoadFile loads a single document at relPath without tier layering.
func (l *Loader) LoadFile(ctx context.Context, relPath string) (*Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.loadTier(ctx, relPath, "explicit")
}

// CanonicalJSON returns deterministic JSON bytes for the merged config,
// suitable for digesting and change detection across reloads.
func (b *Bundle) CanonicalJSON() ([]byte, error) {
	if b == nil {
		return nil, ErrInvalidOptions
	}
	return canonical.Encode(b.Merged, b.maxCanonicalBytes)
}

// Digest returns the SHA-256 of CanonicalJSON.
func (b *Bundle) Digest() (string, error) {
	j, err := b.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return canonical.Sum(j), nil
}

type tierPath struct {
	tier string
	path string
}

func (l *Loader) tierPaths() []tierPath {
	exts := []string{".json", ".yaml", ".yml"}
	var out []tierPath
	for _, ext := range exts {
		out = append(out, tierPath{tier: "base", path: l.opts.Service + ext})
	}
	if l.opts.Env != "" {
		for _, ext := range exts {
			out = append(out, tierPath{tier: "env", path: filepath.Join("env", l.opts.Env, l.opts.Service+ext)})
		}
	}
	return out
}

func tierRank(tier string) int {
	switch tier {
	case "base":
		return 1
	case "env":
		return 2
	default:
		return 9
	}
}

func (l *Loader) loadTier(ctx context.Context, relOrAbs, tier string) (*Document, error) {
	relOrAbs = strings.TrimSpace(relOrAbs)
	if relOrAbs == "" {
		return nil, ErrNotFound
	}

	var abs string
	if filepath.IsAbs(relOrAbs) {
		resolved, err := filepath.EvalSymlinks(relOrAbs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !withinRoot(l.rootAbs, resolved) {
			return nil, ErrPathEscape
		}
		abs = resolved
	} else {
		resolved, err := l.safeJoin(relOrAbs)
		if err != nil {
			return nil, err
		}
		abs = resolved
	}

	doc, err := l.readDoc(ctx, abs, tier)
	if err != nil {
		return nil, err
	}
	doc.Path = relSlash(l.rootAbs, abs)
	return &doc, nil
}

func (l *Loader) safeJoin(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if filepath.IsAbs(clean) {
		return "", ErrPathEscape
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	abs := filepath.Join(l.rootAbs, clean)
	absEval, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !withinRoot(l.rootAbs, absEval) {
		return "", ErrPathEscape
	}
	return absEval, nil
}

func withinRoot(rootAbs, targetAbs string) bool {
	root := filepath.Clean(rootAbs)
	tgt := filepath.Clean(targetAbs)
	if tgt == root {
		return true
	}
	return strings.HasPrefix(tgt, root+string(os.PathSeparator))
}

func relSlash(rootAbs, abs string) string {
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		rel = abs
	}
	return filepath.ToSlash(filepath.Clean(rel))
}

func (l *Loader) readDoc(ctx context.Context, absPath, tier string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	fi, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if fi.Size() > l.opts.MaxFileBytes {
		return Document{}, ErrFileTooLarge
	}

	f, err := os.Open(absPath)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, l.opts.MaxFileBytes+1))
	if err != nil {
		return Document{}, err
	}
	if int64(len(raw)) > l.opts.MaxFileBytes {
		return Document{}, ErrFileTooLarge
	}

	var obj map[string]any
	switch ext := strings.ToLower(filepath.Ext(absPath)); ext {
	case ".json":
		if err := decodeStrictJSON(raw, &obj); err != nil {
			return Document{}, err
		}
	case ".yaml", ".yml":
		if err := decodeYAML(raw, &obj); err != nil {
			return Document{}, err
		}
	default:
		return Document{}, ErrUnsupportedExt
	}

	return Document{
		Tier:     tier,
		LoadedAt: time.Now().UTC(),
		SHA256:   canonical.Sum(raw),
		Data:     obj,
	}, nil
}

func decodeStrictJSON(b []byte, out *map[string]any) error {
	dec := json.NewDecoder(strings.NewReader(string(trimBOM(b))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDoc, err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return fmt.Errorf("%w: trailing tokens", ErrInvalidDoc)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ErrNotObject
	}
	*out = m
	return nil
}

func decodeYAML(b []byte, out *map[string]any) error {
	var v any
	if err := yaml.Unmarshal(trimBOM(b), &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDoc, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ErrNotObject
	}
	*out = m
	return nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

// ---- env-var overrides ----

func (l *Loader) envOverrides() (map[string]any, error) {
	prefix := l.opts.EnvPrefix
	delim := l.opts.PathDelimiter

	out := map[string]any{}
	matched := 0
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		matched++
		if matched > l.opts.MaxEnvVars {
			return nil, fmt.Errorf("%w: too many env vars for prefix %q", ErrEnvOverride, prefix)
		}

		rest := strings.TrimSpace(strings.TrimPrefix(name, prefix))
		if rest == "" {
			l.warn("env.skip.empty_key", name)
			continue
		}

		var segs []string
		valid := true
		for _, s := range strings.Split(rest, delim) {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if !l.reSegment.MatchString(s) {
				l.warn("env.skip.invalid_segment", fmt.Sprintf("%s segment=%q", name, s))
				valid = false
				break
			}
			segs = append(segs, s)
		}
		if !valid || len(segs) == 0 || len(segs) > l.opts.MaxDepth {
			if len(segs) > l.opts.MaxDepth {
				l.warn("env.skip.too_deep", name)
			}
			continue
		}

		setPath(out, segs, parseEnvValue(value))
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseEnvValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return s
}

func setPath(root map[string]any, segs []string, val any) {
	cur := root
	for i, k := range segs {
		if i == len(segs)-1 {
			cur[k] = val
			return
		}
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
}
