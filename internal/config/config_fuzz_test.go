package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig tests configuration loading with malformed YAML.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`server:
  port: 8080
  host: localhost
template:
  root: site`)
	f.Add(`server:
  port: "invalid_port"`)
	f.Add(`server:
  port: 65536`)
	f.Add(`template:
  dirs:
    layout: ../../etc`)
	f.Add(`build:
  concurrency: -3`)
	f.Add(`malformed: yaml: content`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, yamlContent string) {
		if len(yamlContent) > 50000 {
			t.Skip("config content too large")
		}

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
			return
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}

		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			t.Errorf("invalid port accepted: %d", cfg.Server.Port)
		}
		if cfg.Build.Concurrency < 1 {
			t.Errorf("invalid concurrency accepted: %d", cfg.Build.Concurrency)
		}
		for _, dir := range []string{cfg.Template.Dirs.Helper, cfg.Template.Dirs.Data, cfg.Template.Dirs.Partial, cfg.Template.Dirs.Layout} {
			if strings.Contains(dir, "..") {
				t.Errorf("traversal accepted in type directory: %q", dir)
			}
		}
	})
}

// FuzzParseOverrides tests project configuration decoding in every format.
func FuzzParseOverrides(f *testing.F) {
	f.Add("default_layout: blog\ndirs:\n  partial: parts\n", ".yml")
	f.Add(`{"default_page": "home", "disable_cache": true}`, ".json")
	f.Add("dirs:\n  layout: ../secret\n", ".yaml")
	f.Add("dirs: [", ".yml")

	f.Fuzz(func(t *testing.T, source, ext string) {
		if len(source) > 20000 {
			t.Skip("config content too large")
		}
		valid := false
		for _, e := range OverrideExts {
			valid = valid || e == ext
		}
		if !valid {
			return
		}

		o, err := ParseOverrides(source, ext)
		if err != nil {
			return
		}
		for _, kind := range []Kind{KindHelper, KindData, KindPartial, KindLayout, KindView} {
			if dir := o.Dir(kind); strings.Contains(dir, "..") {
				t.Errorf("traversal accepted for %s: %q", kind, dir)
			}
		}
	})
}
