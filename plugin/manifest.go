package plugin

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
)

// Dependency is declarative-only per §9: the core runtime never resolves
// or enforces it.
type Dependency struct {
	Name       string `toml:"name" json:"name"`
	VersionReq string `toml:"version" json:"version"`
	Optional   bool   `toml:"optional" json:"optional"`
}

// Manifest is the plugin's declarative contract. Treat a Manifest as
// immutable once Validate has returned ok; ManifestBuilder is the only
// sanctioned way to construct one field-by-field.
type Manifest struct {
	Name         string
	VersionStr   string
	APIVersion   Version
	Capabilities []string
	Dependencies []Dependency
	Source       string
	Bytecode     string
	Exports      []string
	Description  string
	Authors      []string
	License      string
	Tags         []string
	Metadata     map[string]string

	// manifestDir is the directory entry-point resolution is relative to,
	// set by the loader when a manifest is read from disk. Not serialized.
	manifestDir string
}

// CapabilityResolver is the narrow lookup the manifest validates
// capability names against; implemented by capability.Registry.
type CapabilityResolver interface {
	FromName(name string) (any, bool)
}

// Validate checks the invariants §3/§4.1 demand: non-empty name/version,
// exactly-one-or-both entry point, and every declared capability known to
// resolver.
func (m *Manifest) Validate(resolver CapabilityResolver) error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrMissingManifestField("name")
	}
	if strings.TrimSpace(m.VersionStr) == "" {
		return ErrMissingManifestField("version")
	}
	if m.Source == "" && m.Bytecode == "" {
		return ErrInvalidManifest("manifest declares neither source nor bytecode entry point")
	}
	if resolver != nil {
		for _, c := range m.Capabilities {
			if _, ok := resolver.FromName(c); !ok {
				return ErrInvalidManifest(fmt.Sprintf("unknown capability %q", c))
			}
		}
	}
	return nil
}

// IsCompatibleWithHost reports §3's compatibility predicate for this
// manifest's api-version against host.
func (m *Manifest) IsCompatibleWithHost(host Version) bool {
	return host.IsCompatibleWith(m.APIVersion)
}

// RequiresCapability reports whether name is in the manifest's declared
// capability list.
func (m *Manifest) RequiresCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// UsesSource reports whether the entry point is source (source takes
// precedence over bytecode when both are set).
func (m *Manifest) UsesSource() bool {
	return m.Source != ""
}

// EntryPoint returns the resolved entry-point path: source if present,
// otherwise bytecode, resolved against manifestDir (or left as-is if
// already absolute / manifestDir unset).
func (m *Manifest) EntryPoint() string {
	p := m.Bytecode
	if m.UsesSource() {
		p = m.Source
	}
	if p == "" || filepath.IsAbs(p) || m.manifestDir == "" {
		return p
	}
	return filepath.Join(m.manifestDir, p)
}

// WithManifestDir returns a copy of m with manifestDir set; used by the
// loader to anchor relative entry-point resolution.
func (m Manifest) WithManifestDir(dir string) Manifest {
	m.manifestDir = dir
	return m
}

// --- serialization -------------------------------------------------------

// manifestWire is the on-disk shape; APIVersion is accepted either as a
// dotted string ("0.18.0") or as a {major,minor,patch} table, per §6.
type manifestWire struct {
	Name         string            `toml:"name" json:"name"`
	Version      string            `toml:"version" json:"version"`
	APIVersion   interface{}       `toml:"api-version" json:"api-version"`
	Capabilities []string          `toml:"capabilities" json:"capabilities"`
	Dependencies []Dependency      `toml:"dependencies" json:"dependencies"`
	Source       string            `toml:"source" json:"source"`
	Bytecode     string            `toml:"bytecode" json:"bytecode"`
	Exports      []string          `toml:"exports" json:"exports"`
	Description  string            `toml:"description" json:"description"`
	Authors      []string          `toml:"authors" json:"authors"`
	License      string            `toml:"license" json:"license"`
	Tags         []string          `toml:"tags" json:"tags"`
	Metadata     map[string]string `toml:"metadata" json:"metadata"`
}

func parseAPIVersion(raw interface{}) (Version, error) {
	switch v := raw.(type) {
	case nil:
		return DefaultAPIVersion, nil
	case string:
		if v == "" {
			return DefaultAPIVersion, nil
		}
		return ParseVersion(v)
	case map[string]interface{}:
		return versionFromTable(v)
	default:
		return Version{}, fmt.Errorf("unsupported api-version shape %T", raw)
	}
}

func versionFromTable(t map[string]interface{}) (Version, error) {
	get := func(k string) uint64 {
		switch n := t[k].(type) {
		case int64:
			return uint64(n)
		case float64:
			return uint64(n)
		case int:
			return uint64(n)
		}
		return 0
	}
	return Version{Major: get("major"), Minor: get("minor"), Patch: get("patch")}, nil
}

func wireToManifest(w manifestWire) (*Manifest, error) {
	apiVersion, err := parseAPIVersion(w.APIVersion)
	if err != nil {
		return nil, ErrManifestParse("invalid api-version", err)
	}
	return &Manifest{
		Name:         w.Name,
		VersionStr:   w.Version,
		APIVersion:   apiVersion,
		Capabilities: w.Capabilities,
		Dependencies: w.Dependencies,
		Source:       w.Source,
		Bytecode:     w.Bytecode,
		Exports:      w.Exports,
		Description:  w.Description,
		Authors:      w.Authors,
		License:      w.License,
		Tags:         w.Tags,
		Metadata:     w.Metadata,
	}, nil
}

func manifestToWire(m *Manifest) manifestWire {
	return manifestWire{
		Name:         m.Name,
		Version:      m.VersionStr,
		APIVersion:   m.APIVersion.String(),
		Capabilities: m.Capabilities,
		Dependencies: m.Dependencies,
		Source:       m.Source,
		Bytecode:     m.Bytecode,
		Exports:      m.Exports,
		Description:  m.Description,
		Authors:      m.Authors,
		License:      m.License,
		Tags:         m.Tags,
		Metadata:     m.Metadata,
	}
}

// ManifestFromTOML decodes a manifest from TOML text.
func ManifestFromTOML(data []byte) (*Manifest, error) {
	var w manifestWire
	if err := toml.Unmarshal(data, &w); err != nil {
		return nil, ErrManifestParse("invalid TOML", err)
	}
	return wireToManifest(w)
}

// ManifestFromJSON decodes a manifest from JSON text.
func ManifestFromJSON(data []byte) (*Manifest, error) {
	var w manifestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrManifestParse("invalid JSON", err)
	}
	return wireToManifest(w)
}

// ToTOML encodes the manifest as TOML text.
func (m *Manifest) ToTOML() ([]byte, error) {
	return toml.Marshal(manifestToWire(m))
}

// ToJSON encodes the manifest as JSON text.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.Marshal(manifestToWire(m))
}

// --- builder --------------------------------------------------------------

// ManifestBuilder constructs a Manifest fluently, mirroring
// original_source's ManifestBuilder and the teacher's factory-style
// construction.
type ManifestBuilder struct {
	m Manifest
}

func NewManifestBuilder(name, version string) *ManifestBuilder {
	return &ManifestBuilder{m: Manifest{
		Name:       name,
		VersionStr: version,
		APIVersion: DefaultAPIVersion,
		Metadata:   map[string]string{},
	}}
}

func (b *ManifestBuilder) APIVersion(v Version) *ManifestBuilder {
	b.m.APIVersion = v
	return b
}

func (b *ManifestBuilder) Source(path string) *ManifestBuilder {
	b.m.Source = path
	return b
}

func (b *ManifestBuilder) Bytecode(path string) *ManifestBuilder {
	b.m.Bytecode = path
	return b
}

func (b *ManifestBuilder) Capability(name string) *ManifestBuilder {
	b.m.Capabilities = append(b.m.Capabilities, name)
	return b
}

func (b *ManifestBuilder) Export(name string) *ManifestBuilder {
	b.m.Exports = append(b.m.Exports, name)
	return b
}

func (b *ManifestBuilder) Dependency(d Dependency) *ManifestBuilder {
	b.m.Dependencies = append(b.m.Dependencies, d)
	return b
}

func (b *ManifestBuilder) Tag(tag string) *ManifestBuilder {
	b.m.Tags = append(b.m.Tags, tag)
	return b
}

func (b *ManifestBuilder) Description(d string) *ManifestBuilder {
	b.m.Description = d
	return b
}

func (b *ManifestBuilder) Metadata(key, value string) *ManifestBuilder {
	if b.m.Metadata == nil {
		b.m.Metadata = map[string]string{}
	}
	b.m.Metadata[key] = value
	return b
}

// Build validates the manifest before returning it.
func (b *ManifestBuilder) Build(resolver CapabilityResolver) (*Manifest, error) {
	m := b.m
	if err := m.Validate(resolver); err != nil {
		return nil, err
	}
	return &m, nil
}

// BuildUnchecked returns the manifest without validation, for callers
// (like the loader's synthetic source/bytecode manifests) that know the
// result is valid by construction.
func (b *ManifestBuilder) BuildUnchecked() *Manifest {
	m := b.m
	return &m
}
