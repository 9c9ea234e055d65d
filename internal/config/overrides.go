package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Overrides is the per-project configuration loaded from
// {root}/{project}/{config_filename}{ext}. Empty fields inherit from the
// base Template.
type Overrides struct {
	Dirs          Dirs           `mapstructure:"dirs" yaml:"dirs"`
	DefaultLayout string         `mapstructure:"default_layout" yaml:"default_layout"`
	DefaultPage   string         `mapstructure:"default_page" yaml:"default_page"`
	DisableCache  *bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	Data          map[string]any `mapstructure:"data" yaml:"data"`
}

// Dir returns the project directory for kind, or "" to inherit.
func (o *Overrides) Dir(kind Kind) string {
	if o == nil {
		return ""
	}
	return o.Dirs.Get(kind)
}

// OverrideExts are the sidecar config extensions tried in order.
var OverrideExts = []string{".yml", ".yaml", ".json"}

// ParseOverrides decodes a project configuration file. ext selects the
// format and must be one of OverrideExts.
func ParseOverrides(source, ext string) (*Overrides, error) {
	v := viper.New()
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	if err := v.ReadConfig(strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("reading project config: %w", err)
	}

	var o Overrides
	if err := v.Unmarshal(&o); err != nil {
		return nil, fmt.Errorf("decoding project config: %w", err)
	}

	for _, dir := range []string{o.Dirs.Helper, o.Dirs.Data, o.Dirs.Partial, o.Dirs.Layout, o.Dirs.View} {
		if dir == "" {
			continue
		}
		if err := validatePath(dir); err != nil {
			return nil, fmt.Errorf("project config: invalid type directory '%s': %w", dir, err)
		}
	}

	return &o, nil
}
