// Package config provides configuration management for quilt using Viper
// for loading from files, environment variables and command-line flags.
//
// The base configuration lives in .quilt.yml (or QUILT_CONFIG_FILE) and is
// overridden by QUILT_ environment variables and flags. Each project may
// carry its own sidecar configuration file which is decoded separately into
// Overrides and merged over the base Template settings for that project only.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Kind names the type of a referenced resource. It selects the type
// directory used when a reference carries a shared: or locale: marker.
type Kind string

const (
	KindHelper  Kind = "helper"
	KindData    Kind = "data"
	KindPartial Kind = "partial"
	KindLayout  Kind = "layout"
	KindView    Kind = "view"
)

type Config struct {
	Template Template     `mapstructure:"template" yaml:"template"`
	Build    BuildConfig  `mapstructure:"build" yaml:"build"`
	Server   ServerConfig `mapstructure:"server" yaml:"server"`
	LogLevel string       `mapstructure:"log-level" yaml:"log-level"`
}

// Dirs holds the per-type directory names, relative to a project or to the
// shared directory.
type Dirs struct {
	Helper  string `mapstructure:"helper" yaml:"helper"`
	Data    string `mapstructure:"data" yaml:"data"`
	Partial string `mapstructure:"partial" yaml:"partial"`
	Layout  string `mapstructure:"layout" yaml:"layout"`
	View    string `mapstructure:"view" yaml:"view"`
}

// Get returns the directory configured for kind, or "" when unset.
func (d Dirs) Get(kind Kind) string {
	switch kind {
	case KindHelper:
		return d.Helper
	case KindData:
		return d.Data
	case KindPartial:
		return d.Partial
	case KindLayout:
		return d.Layout
	case KindView:
		return d.View
	}
	return ""
}

// merge returns d with every non-empty field of o applied.
func (d Dirs) merge(o Dirs) Dirs {
	if o.Helper != "" {
		d.Helper = o.Helper
	}
	if o.Data != "" {
		d.Data = o.Data
	}
	if o.Partial != "" {
		d.Partial = o.Partial
	}
	if o.Layout != "" {
		d.Layout = o.Layout
	}
	if o.View != "" {
		d.View = o.View
	}
	return d
}

// Template is the engine configuration shared by every project.
type Template struct {
	Root           string   `mapstructure:"root" yaml:"root"`
	Shared         string   `mapstructure:"shared" yaml:"shared"`
	GroupPattern   string   `mapstructure:"group_pattern" yaml:"group_pattern"`
	TemplateExt    string   `mapstructure:"template_ext" yaml:"template_ext"`
	DataExts       []string `mapstructure:"data_exts" yaml:"data_exts"`
	HelperExt      string   `mapstructure:"helper_ext" yaml:"helper_ext"`
	ConfigFilename string   `mapstructure:"config_filename" yaml:"config_filename"`
	Dirs           Dirs     `mapstructure:"dirs" yaml:"dirs"`
	DefaultPage    string   `mapstructure:"default_page" yaml:"default_page"`
	DefaultLayout  string   `mapstructure:"default_layout" yaml:"default_layout"`
	DisableCache   bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	CacheSize      int      `mapstructure:"cache_size" yaml:"cache_size"`
}

// Dir returns the base type directory for kind.
func (t *Template) Dir(kind Kind) string {
	return t.Dirs.Get(kind)
}

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	c := *t
	c.DataExts = append([]string(nil), t.DataExts...)
	return &c
}

// WithOverrides returns a copy of t with the project overrides applied.
// A nil o returns a plain copy.
func (t *Template) WithOverrides(o *Overrides) *Template {
	c := t.Clone()
	if o == nil {
		return c
	}
	c.Dirs = c.Dirs.merge(o.Dirs)
	if o.DefaultLayout != "" {
		c.DefaultLayout = o.DefaultLayout
	}
	if o.DefaultPage != "" {
		c.DefaultPage = o.DefaultPage
	}
	if o.DisableCache != nil {
		c.DisableCache = *o.DisableCache
	}
	return c
}

type BuildConfig struct {
	Pages       []string `mapstructure:"pages" yaml:"pages"`
	Dest        string   `mapstructure:"dest" yaml:"dest"`
	Manifest    string   `mapstructure:"manifest" yaml:"manifest"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port" yaml:"port"`
	Host       string `mapstructure:"host" yaml:"host"`
	LiveReload bool   `mapstructure:"live_reload" yaml:"live_reload"`
	Watch      bool   `mapstructure:"watch" yaml:"watch"`
}

// Default values.
const (
	DefaultTemplateExt    = ".html"
	DefaultHelperExt      = ".hcl"
	DefaultShared         = "shared"
	DefaultGroupPattern   = "{group,set}/*"
	DefaultConfigFilename = "project"
	DefaultPage           = "index"
	DefaultLayout         = "index"
	DefaultCacheSize      = 64
	DefaultPort           = 8080
	DefaultHost           = "localhost"
	DefaultDest           = "dist"
)

// DefaultDataExts lists the data file extensions tried in order.
var DefaultDataExts = []string{".yml", ".yaml", ".json", ".hcl"}

// DefaultDirs are the type directory names used when nothing is configured.
var DefaultDirs = Dirs{
	Helper:  "helpers",
	Data:    "data",
	Partial: "partials",
	Layout:  "layouts",
	View:    "",
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, viper.New())
	return cfg
}

// Load reads the global viper instance into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads v into a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config, v)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config, v *viper.Viper) {
	t := &config.Template
	if t.Root == "" {
		t.Root = "."
	}
	if t.Shared == "" {
		t.Shared = DefaultShared
	}
	if t.GroupPattern == "" {
		t.GroupPattern = DefaultGroupPattern
	}
	if t.TemplateExt == "" {
		t.TemplateExt = DefaultTemplateExt
	}
	if len(t.DataExts) == 0 {
		t.DataExts = append([]string(nil), DefaultDataExts...)
	}
	if t.HelperExt == "" {
		t.HelperExt = DefaultHelperExt
	}
	if t.ConfigFilename == "" {
		t.ConfigFilename = DefaultConfigFilename
	}
	t.Dirs = DefaultDirs.merge(t.Dirs)
	if t.DefaultPage == "" {
		t.DefaultPage = DefaultPage
	}
	if t.DefaultLayout == "" {
		t.DefaultLayout = DefaultLayout
	}
	if t.CacheSize == 0 {
		t.CacheSize = DefaultCacheSize
	}

	if len(config.Build.Pages) == 0 {
		config.Build.Pages = []string{"**/*" + t.TemplateExt}
	}
	if config.Build.Dest == "" {
		config.Build.Dest = DefaultDest
	}
	if config.Build.Concurrency == 0 {
		config.Build.Concurrency = 8
	}

	if config.Server.Port == 0 && !v.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !v.IsSet("server.live_reload") {
		config.Server.LiveReload = true
	}
	if !v.IsSet("server.watch") {
		config.Server.Watch = true
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateTemplate(&config.Template); err != nil {
		return fmt.Errorf("template config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	return nil
}

func validateTemplate(t *Template) error {
	if t.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", t.CacheSize)
	}

	for name, ext := range map[string]string{"template_ext": t.TemplateExt, "helper_ext": t.HelperExt} {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%s must start with a dot: %q", name, ext)
		}
	}
	for _, ext := range t.DataExts {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("data_exts entries must start with a dot: %q", ext)
		}
	}

	if err := validatePath(t.Shared); err != nil {
		return fmt.Errorf("invalid shared directory '%s': %w", t.Shared, err)
	}
	for _, dir := range []string{t.Dirs.Helper, t.Dirs.Data, t.Dirs.Partial, t.Dirs.Layout, t.Dirs.View} {
		if dir == "" {
			continue
		}
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("invalid type directory '%s': %w", dir, err)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if config.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", config.Concurrency)
	}
	if config.Dest != "" {
		if strings.Contains(filepath.Clean(config.Dest), "..") {
			return fmt.Errorf("dest contains path traversal: %s", config.Dest)
		}
	}

	return nil
}

// validatePath validates a configured directory name.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
