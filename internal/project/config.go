package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultQuietPeriod is used when [build].quiet_period is not set.
const DefaultQuietPeriod = time.Second

// ErrInvalidQuietPeriod reports a non-positive or unparsable quiet period.
var ErrInvalidQuietPeriod = errors.New("invalid [build].quiet_period")

// Duration is a time.Duration decoded from a TOML string such as "1500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuietPeriod, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// BuildConfig is the [build] section.
type BuildConfig struct {
	Root           string   `toml:"root"`
	OutDir         string   `toml:"out_dir"`
	ClientOutDir   string   `toml:"client_out_dir"`
	PublicPath     string   `toml:"public_path"`
	VendorDir      string   `toml:"vendor_dir"`
	QuietPeriod    Duration `toml:"quiet_period"`
	CompositeFile  string   `toml:"composite_file"`
	AssignmentFile string   `toml:"assignment_file"`
	ManifestFile   string   `toml:"manifest_file"`
}

// RuntimeConfig is the [runtime] section consumed by the serving side.
type RuntimeConfig struct {
	JSOrder       []string `toml:"js_order"`
	CSSOrder      []string `toml:"css_order"`
	ExtraJSOrder  []string `toml:"extra_js_order"`
	ExtraCSSOrder []string `toml:"extra_css_order"`
	LiveReload    bool     `toml:"live_reload"`
}

// Config is the decoded chunkplan.toml.
type Config struct {
	Path    string        `toml:"-"`
	Build   BuildConfig   `toml:"build"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// Default returns the configuration used when no chunkplan.toml exists.
func Default() Config {
	var cfg Config
	cfg.applyDefaults(".")
	return cfg
}

// LoadConfig parses a chunkplan.toml and applies defaults. Relative paths are
// resolved against the directory containing the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("build", "quiet_period") && cfg.Build.QuietPeriod.Duration <= 0 {
		return Config{}, fmt.Errorf("%s: %w: must be positive", path, ErrInvalidQuietPeriod)
	}
	cfg.Path = path
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

// Load finds chunkplan.toml starting at startDir. When none is found the
// defaults are returned with ok=false.
func Load(startDir string) (cfg Config, ok bool, err error) {
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return Config{}, false, err
	}
	if !ok {
		return Default(), false, nil
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (c *Config) applyDefaults(base string) {
	b := &c.Build
	if strings.TrimSpace(b.Root) == "" {
		b.Root = base
	} else if !filepath.IsAbs(b.Root) {
		b.Root = filepath.Join(base, b.Root)
	}
	if b.OutDir == "" {
		b.OutDir = "build"
	}
	if b.ClientOutDir == "" {
		b.ClientOutDir = filepath.Join(b.OutDir, "client")
	}
	if b.PublicPath == "" {
		b.PublicPath = "/"
	}
	if b.VendorDir == "" {
		b.VendorDir = "node_modules"
	}
	if b.QuietPeriod.Duration <= 0 {
		b.QuietPeriod.Duration = DefaultQuietPeriod
	}
	if b.CompositeFile == "" {
		b.CompositeFile = "composite-chunks.json"
	}
	if b.AssignmentFile == "" {
		b.AssignmentFile = "chunk-assignments.mp"
	}
	if b.ManifestFile == "" {
		b.ManifestFile = "asset-manifest.json"
	}
	if c.Runtime.JSOrder == nil {
		c.Runtime.JSOrder = []string{"vendor.js"}
	}
}

// OutPath resolves a path under [build].out_dir.
func (c Config) OutPath(name string) string {
	return c.resolve(filepath.Join(c.Build.OutDir, name))
}

// CompositePath is where the composite chunk table is persisted.
func (c Config) CompositePath() string { return c.OutPath(c.Build.CompositeFile) }

// AssignmentPath is where the final assignment map is persisted.
func (c Config) AssignmentPath() string { return c.OutPath(c.Build.AssignmentFile) }

// ManifestPath is where the asset manifest is persisted.
func (c Config) ManifestPath() string {
	return c.resolve(filepath.Join(c.Build.ClientOutDir, c.Build.ManifestFile))
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Build.Root, p)
}
