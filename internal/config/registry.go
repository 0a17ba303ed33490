// Package config holds the facility registry and input-file routing.
//
// The registry is an explicit value handed to the pipeline, not package
// state: tests and multi-tenant callers build their own. The built-in
// defaults cover the production chains; a YAML overlay adds or overrides
// entries per deployment.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chain groups facilities that share a note layout and dashboard behavior.
type Chain struct {
	Name             string `yaml:"name"`
	Format           string `yaml:"format"` // note format name: falls, behaviour, minimal
	SupportsFollowUp bool   `yaml:"supports_follow_up"`
}

// Facility is one home: its file-name key, dashboard identity, and chain.
type Facility struct {
	Key          string `yaml:"key"`           // file-name prefix
	DashboardKey string `yaml:"dashboard_key"` // remote store path segment
	DisplayName  string `yaml:"display_name"`
	Chain        string `yaml:"chain"`

	// WindowHours overrides the chain format's merge window. Zero keeps the
	// format default.
	WindowHours int `yaml:"window_hours"`
}

// Registry resolves facility keys to chains and dashboard identities.
type Registry struct {
	chains     map[string]Chain
	facilities map[string]Facility
}

// NewRegistry builds a registry from explicit entries. Facilities referencing
// an unknown chain are rejected.
func NewRegistry(chains []Chain, facilities []Facility) (*Registry, error) {
	r := &Registry{
		chains:     make(map[string]Chain, len(chains)),
		facilities: make(map[string]Facility, len(facilities)),
	}
	for _, c := range chains {
		r.chains[c.Name] = c
	}
	for _, f := range facilities {
		if _, ok := r.chains[f.Chain]; !ok {
			return nil, fmt.Errorf("facility %q references unknown chain %q", f.Key, f.Chain)
		}
		r.facilities[strings.ToLower(f.Key)] = f
	}
	return r, nil
}

// DefaultRegistry returns the built-in production chains and facilities.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		[]Chain{
			{Name: "berkshire", Format: "falls", SupportsFollowUp: false},
			{Name: "millcreek", Format: "behaviour", SupportsFollowUp: true},
			{Name: "test", Format: "minimal", SupportsFollowUp: false},
		},
		[]Facility{
			{Key: "oakridge", DashboardKey: "oakridge-manor", DisplayName: "Oakridge Manor", Chain: "berkshire"},
			{Key: "lakeview", DashboardKey: "lakeview-ltc", DisplayName: "Lakeview Long Term Care", Chain: "berkshire"},
			{Key: "hillcrest", DashboardKey: "hillcrest-gardens", DisplayName: "Hillcrest Gardens", Chain: "millcreek"},
			{Key: "riverbend", DashboardKey: "riverbend-villa", DisplayName: "Riverbend Villa", Chain: "millcreek", WindowHours: 3},
			{Key: "pinegrove", DashboardKey: "pinegrove-home", DisplayName: "Pinegrove Home", Chain: "test"},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Facility looks up a facility by its file-name key, case-insensitive.
func (r *Registry) Facility(key string) (Facility, bool) {
	f, ok := r.facilities[strings.ToLower(key)]
	return f, ok
}

// Chain looks up a chain by name.
func (r *Registry) Chain(name string) (Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// ChainFor returns the chain of a facility key.
func (r *Registry) ChainFor(key string) (Chain, bool) {
	f, ok := r.Facility(key)
	if !ok {
		return Chain{}, false
	}
	return r.Chain(f.Chain)
}

// Facilities returns all facilities sorted by key.
func (r *Registry) Facilities() []Facility {
	out := make([]Facility, 0, len(r.facilities))
	for _, f := range r.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// overlayFile is the YAML overlay shape.
type overlayFile struct {
	Chains     []Chain    `yaml:"chains"`
	Facilities []Facility `yaml:"facilities"`
}

// LoadOverlay applies a YAML overlay on top of the registry: listed chains
// and facilities are added or replace same-key defaults. A missing file is
// not an error; a malformed one is.
func (r *Registry) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading registry overlay %s: %w", path, err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing registry overlay %s: %w", path, err)
	}

	for _, c := range overlay.Chains {
		r.chains[c.Name] = c
	}
	for _, f := range overlay.Facilities {
		if _, ok := r.chains[f.Chain]; !ok {
			return fmt.Errorf("registry overlay %s: facility %q references unknown chain %q", path, f.Key, f.Chain)
		}
		r.facilities[strings.ToLower(f.Key)] = f
	}
	return nil
}
