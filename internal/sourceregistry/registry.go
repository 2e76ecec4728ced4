// Package sourceregistry loads and holds per-source ingest policy documents:
// endpoints, rate limits, MIME policy, parse plan, and normalizer
// selection. It is pure data plus a concurrency-safe lookup table.
package sourceregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound     = errors.New("sourceregistry: source not found")
	ErrInvalidSpec  = errors.New("sourceregistry: invalid source spec")
	ErrSourceExists = errors.New("sourceregistry: source already registered")
)

// Endpoint is one fetchable location for a source; the first in SourceSpec.Endpoints is primary.
type Endpoint struct {
	URL    string `json:"url" yaml:"url"`
	Method string `json:"method" yaml:"method"`
}

// RateLimits holds the optional per-dimension limits applied by the rate limiter.
type RateLimits struct {
	RequestsPerMin int `json:"requests_per_min,omitempty" yaml:"requests_per_min,omitempty"`
	BytesPerMin    int `json:"bytes_per_min,omitempty" yaml:"bytes_per_min,omitempty"`
	Concurrency    int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// Content describes the MIME/size policy enforced by the Ingest Use Case.
type Content struct {
	AllowedMimeTypes  []string `json:"allowed_mime_types" yaml:"allowed_mime_types"`
	MaxPayloadSizeBytes int64  `json:"max_payload_size_bytes" yaml:"max_payload_size_bytes"`
}

// Policy carries licensing metadata stamped onto accepted envelopes.
type Policy struct {
	LicenseID string `json:"license_id,omitempty" yaml:"license_id,omitempty"`
}

// Pipeline carries optional per-source stage selections. NormalizerID picks
// the normalizer strategy; ParserID is decoded but not consulted, since the
// parser always comes from ParsePlanRef.
type Pipeline struct {
	ParserID     string `json:"parser_id,omitempty" yaml:"parser_id,omitempty"`
	NormalizerID string `json:"normalizer_id,omitempty" yaml:"normalizer_id,omitempty"`
}

// Venue is the fixed venue a single-venue source's events all happen at.
// Required when pipeline.normalizer_id selects a fixed-venue strategy;
// ignored otherwise.
type Venue struct {
	Name         string  `json:"name" yaml:"name"`
	Address      string  `json:"address,omitempty" yaml:"address,omitempty"`
	PostalCode   string  `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	City         string  `json:"city,omitempty" yaml:"city,omitempty"`
	Latitude     float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	URL          string  `json:"url,omitempty" yaml:"url,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty" yaml:"neighborhood,omitempty"`
}

// SourceSpec is the full per-source policy document.
type SourceSpec struct {
	SourceID     string     `json:"source_id" yaml:"source_id"`
	Enabled      bool       `json:"enabled" yaml:"enabled"`
	Endpoints    []Endpoint `json:"endpoints" yaml:"endpoints"`
	RateLimits   RateLimits `json:"rate_limits" yaml:"rate_limits"`
	Content      Content    `json:"content" yaml:"content"`
	Policy       Policy     `json:"policy" yaml:"policy"`
	ParsePlanRef string     `json:"parse_plan_ref" yaml:"parse_plan_ref"`
	Pipeline     Pipeline   `json:"pipeline" yaml:"pipeline"`
	Venue        *Venue     `json:"venue,omitempty" yaml:"venue,omitempty"`

	// MinIntervalSeconds overrides the Ingest Use Case's default 12h cadence. Zero means default.
	MinIntervalSeconds int64 `json:"min_interval_seconds,omitempty" yaml:"min_interval_seconds,omitempty"`
}

// PrimaryEndpoint returns the first configured endpoint, or the zero value if none exist.
func (s SourceSpec) PrimaryEndpoint() (Endpoint, bool) {
	if len(s.Endpoints) == 0 {
		return Endpoint{}, false
	}
	return s.Endpoints[0], true
}

func (s SourceSpec) validate() error {
	if strings.TrimSpace(s.SourceID) == "" {
		return fmt.Errorf("%w: source_id required", ErrInvalidSpec)
	}
	if len(s.Endpoints) == 0 {
		return fmt.Errorf("%w: %s has no endpoints", ErrInvalidSpec, s.SourceID)
	}
	for i, e := range s.Endpoints {
		if strings.TrimSpace(e.URL) == "" {
			return fmt.Errorf("%w: %s endpoint[%d] missing url", ErrInvalidSpec, s.SourceID, i)
		}
	}
	if strings.TrimSpace(s.ParsePlanRef) == "" {
		return fmt.Errorf("%w: %s missing parse_plan_ref", ErrInvalidSpec, s.SourceID)
	}
	if s.Content.MaxPayloadSizeBytes <= 0 {
		return fmt.Errorf("%w: %s content.max_payload_size_bytes must be positive", ErrInvalidSpec, s.SourceID)
	}
	if s.Venue != nil && strings.TrimSpace(s.Venue.Name) == "" {
		return fmt.Errorf("%w: %s venue.name required when venue block is present", ErrInvalidSpec, s.SourceID)
	}
	return nil
}

// Registry holds loaded SourceSpecs in memory behind a mutex.
type Registry struct {
	mu sync.RWMutex
	m  map[string]SourceSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]SourceSpec)}
}

// Register validates and adds a SourceSpec, failing if the id is already present.
func (r *Registry) Register(s SourceSpec) error {
	if err := s.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.m[s.SourceID]; ok {
		return fmt.Errorf("%w: %s", ErrSourceExists, s.SourceID)
	}
	r.m[s.SourceID] = s
	return nil
}

// Put validates and adds-or-replaces a SourceSpec (used when reloading from disk).
func (r *Registry) Put(s SourceSpec) error {
	if err := s.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.SourceID] = s
	return nil
}

// Get returns the SourceSpec for sourceID, or ErrNotFound.
func (r *Registry) Get(sourceID string) (SourceSpec, error) {
	sourceID = strings.TrimSpace(sourceID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[sourceID]
	if !ok {
		return SourceSpec{}, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	return s, nil
}

// List returns all known source ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadDir reads every *.json/*.yaml/*.yml file directly under dir and registers
// each as a SourceSpec keyed by its own source_id field, mirroring the layered
// config loader's path-escape-safe file resolution (base directory only; no
// traversal above dir is permitted).
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sourceregistry: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".json" || ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		p := filepath.Join(dir, name)
		clean := filepath.Clean(p)
		if !strings.HasPrefix(clean, filepath.Clean(dir)+string(os.PathSeparator)) && clean != filepath.Clean(dir) {
			return nil, fmt.Errorf("sourceregistry: refusing to read outside base dir: %s", p)
		}

		spec, err := loadSpecFile(clean)
		if err != nil {
			return nil, fmt.Errorf("sourceregistry: %s: %w", name, err)
		}
		if err := reg.Put(spec); err != nil {
			return nil, fmt.Errorf("sourceregistry: %s: %w", name, err)
		}
	}
	return reg, nil
}

func loadSpecFile(path string) (SourceSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SourceSpec{}, ErrNotFound
		}
		return SourceSpec{}, err
	}

	var spec SourceSpec
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &spec); err != nil {
			return SourceSpec{}, fmt.Errorf("%w: yaml decode: %v", ErrInvalidSpec, err)
		}
	default:
		if err := json.Unmarshal(b, &spec); err != nil {
			return SourceSpec{}, fmt.Errorf("%w: json decode: %v", ErrInvalidSpec, err)
		}
	}
	if err := spec.validate(); err != nil {
		return SourceSpec{}, err
	}
	return spec, nil
}
