package config

import (
	"errors"
	"fmt"
)

// ErrInvalidSetting is returned when a settings patch carries an
// out-of-range value.
var ErrInvalidSetting = errors.New("invalid setting")

// SettingsPatch is a partial settings update. Only non-nil fields are merged.
// Applying a patch never triggers a rebuild: settings changes are cheap and
// atomic, rebuilds are expensive and explicit.
type SettingsPatch struct {
	ResultCount    *int  `json:"result_count,omitempty"`
	AutoIndex      *bool `json:"auto_index,omitempty"`
	MaxElements    *int  `json:"max_elements,omitempty"`
	M              *int  `json:"m,omitempty"`
	EfConstruction *int  `json:"ef_construction,omitempty"`
	EfSearch       *int  `json:"ef_search,omitempty"`
}

// Validate checks that all provided values are positive.
func (p *SettingsPatch) Validate() error {
	check := func(name string, v *int) error {
		if v != nil && *v < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidSetting, name, *v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    *int
	}{
		{"result_count", p.ResultCount},
		{"max_elements", p.MaxElements},
		{"m", p.M},
		{"ef_construction", p.EfConstruction},
		{"ef_search", p.EfSearch},
	} {
		if err := check(c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the patch into cfg and reports whether any field affecting
// index topology changed, in which case the caller should follow up with an
// explicit rebuild for the change to take effect. cfg must be a private copy,
// never a snapshot other goroutines may be reading (see Store).
func (p *SettingsPatch) Apply(cfg *Config) bool {
	topologyChanged := false
	if p.ResultCount != nil {
		cfg.Search.ResultCount = *p.ResultCount
	}
	if p.AutoIndex != nil {
		v := *p.AutoIndex
		cfg.Search.AutoIndex = &v
	}
	if p.MaxElements != nil && *p.MaxElements != cfg.Index.MaxElements {
		cfg.Index.MaxElements = *p.MaxElements
		topologyChanged = true
	}
	if p.M != nil && *p.M != cfg.Index.M {
		cfg.Index.M = *p.M
		topologyChanged = true
	}
	if p.EfConstruction != nil && *p.EfConstruction != cfg.Index.EfConstruction {
		cfg.Index.EfConstruction = *p.EfConstruction
		topologyChanged = true
	}
	if p.EfSearch != nil && *p.EfSearch != cfg.Index.EfSearch {
		cfg.Index.EfSearch = *p.EfSearch
		topologyChanged = true
	}
	return topologyChanged
}
