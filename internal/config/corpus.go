package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/capreg/internal/branding"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

// Cache store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Read modes for a section that is being recomputed.
const (
	ReadBlock = "block"
	ReadStale = "stale"
)

// Corpus is the configuration of one corpus, read from capreg.yaml at its
// root with CAPREG_* environment overrides.
type Corpus struct {
	// Root is the absolute corpus root. It is not read from the file.
	Root string `mapstructure:"-" yaml:"-"`
	// File is the config file that was read, or "" when defaults were used.
	File string `mapstructure:"-" yaml:"-"`

	SchemaDir        string              `mapstructure:"schema_dir" yaml:"schema_dir"`
	BuiltinSchemas   bool                `mapstructure:"builtin_schemas" yaml:"builtin_schemas"`
	Mode             string              `mapstructure:"mode" yaml:"mode"`
	Roots            map[string][]string `mapstructure:"roots" yaml:"roots"`
	Exclude          []string            `mapstructure:"exclude" yaml:"exclude"`
	ExternalPrefixes []string            `mapstructure:"external_prefixes" yaml:"external_prefixes"`
	CanonicalDirs    []string            `mapstructure:"canonical_dirs" yaml:"canonical_dirs"`
	Workers          int                 `mapstructure:"workers" yaml:"workers"`
	LogLevel         string              `mapstructure:"log_level" yaml:"log_level"`
	MetricsFile      string              `mapstructure:"metrics_file" yaml:"metrics_file"`
	Cache            Cache               `mapstructure:"cache" yaml:"cache"`
	Watch            Watch               `mapstructure:"watch" yaml:"watch"`
}

// Cache configures the reactive index cache.
type Cache struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Store    string `mapstructure:"store" yaml:"store"`
	ReadMode string `mapstructure:"read_mode" yaml:"read_mode"`
	// Sections adds extra trigger patterns per section name.
	Sections map[string][]string `mapstructure:"sections" yaml:"sections"`
}

// Watch configures the file watcher.
type Watch struct {
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// DefaultRoots are the document roots per component type. A type may have
// several historical roots; they are unioned.
func DefaultRoots() map[string][]string {
	return map[string][]string{
		"agent":       {"agents/**/*.md"},
		"skill":       {"skills/**/SKILL.md"},
		"knowledge":   {"knowledge/**/*.json", "knowledge/**/*.md"},
		"workflow":    {"workflows/**/*.md", "workflows/**/*.yaml", "workflows/**/*.yml"},
		"blueprint":   {"blueprints/*/blueprint.yaml", "blueprints/*/blueprint.yml", "blueprints/*/blueprint.json", "blueprints/*/blueprint.md"},
		"attestation": {"attestations/**/*.json", "attestations/**/*.yaml", "attestations/**/*.md"},
		"contract":    {"contracts/**/*.md", "contracts/**/*.yaml"},
		"identity":    {"identities/**/*.md", "identities/**/*.yaml"},
		"protocol":    {"protocols/**/*.md"},
		"rule":        {"rules/**/*.md"},
		"template":    {"templates/**/*.md", "templates/**/*.json", "templates/**/*.yaml", "patterns/agents/*.json", "patterns/skills/*.json"},
	}
}

func setDefaults(v *viper.Viper) {
	roots := make(map[string]any)
	for t, patterns := range DefaultRoots() {
		roots[t] = patterns
	}
	v.SetDefault("schema_dir", "schemas")
	v.SetDefault("builtin_schemas", true)
	v.SetDefault("mode", "fast")
	v.SetDefault("roots", roots)
	v.SetDefault("exclude", []string{"**/node_modules/**", "*/README.md"})
	v.SetDefault("external_prefixes", []string{})
	v.SetDefault("canonical_dirs", []string{"docs"})
	v.SetDefault("workers", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_file", "")
	v.SetDefault("cache.dir", branding.StateDir())
	v.SetDefault("cache.store", StoreFile)
	v.SetDefault("cache.read_mode", ReadBlock)
	v.SetDefault("watch.debounce_ms", 200)
}

// LoadCorpus reads the corpus config for root. When file is empty, the
// corpus config file (capreg.yaml, .yml, .json or .toml) is looked up in
// root; a missing file leaves the defaults in place. Each defaults map
// replaces built-in defaults by dotted key, below the file and environment.
func LoadCorpus(root, file string, defaults ...map[string]any) (*Corpus, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving corpus root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, report.ErrCorpusRootMissing)
	}

	v := viper.New()
	setDefaults(v)
	for _, d := range defaults {
		for k, val := range d {
			v.SetDefault(k, val)
		}
	}
	v.SetEnvPrefix(branding.EnvPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(branding.CorpusFile())
		v.AddConfigPath(abs)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading corpus config: %w", err)
		}
	}

	c := &Corpus{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding corpus config: %w", err)
	}
	c.Root = abs
	c.File = v.ConfigFileUsed()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the default configuration for root without reading files
// or the environment.
func Default(root string) *Corpus {
	v := viper.New()
	setDefaults(v)
	c := &Corpus{}
	_ = v.Unmarshal(c)
	c.Root = root
	return c
}

// Validate checks the values that would otherwise fail late.
func (c *Corpus) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "fast", "strict":
	default:
		return fmt.Errorf("invalid mode %q (want fast or strict)", c.Mode)
	}
	switch c.Cache.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("invalid cache.store %q (want %s or %s)", c.Cache.Store, StoreFile, StoreSQLite)
	}
	switch c.Cache.ReadMode {
	case ReadBlock, ReadStale:
	default:
		return fmt.Errorf("invalid cache.read_mode %q (want %s or %s)", c.Cache.ReadMode, ReadBlock, ReadStale)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for name, patterns := range c.Roots {
		if _, err := document.ParseType(name); err != nil {
			return fmt.Errorf("roots: %w", err)
		}
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("roots.%s: invalid pattern %q", name, p)
			}
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("exclude: invalid pattern %q", p)
		}
	}
	return nil
}

// RootsFor returns the de-duplicated root patterns of t.
func (c *Corpus) RootsFor(t document.ComponentType) []string {
	var out []string
	seen := make(map[string]bool)
	for name, patterns := range c.Roots {
		pt, err := document.ParseType(name)
		if err != nil || pt != t {
			continue
		}
		for _, p := range patterns {
			p = strings.TrimPrefix(filepath.ToSlash(p), "./")
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Excluded reports whether the corpus-relative path rel is excluded.
func (c *Corpus) Excluded(rel string) bool {
	for _, p := range c.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// SchemaPath returns the absolute schema directory, or "" when unset.
func (c *Corpus) SchemaPath() string {
	return c.abs(c.SchemaDir)
}

// CachePath returns the absolute cache directory.
func (c *Corpus) CachePath() string {
	return c.abs(c.Cache.Dir)
}

func (c *Corpus) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// WriteFile saves c as a YAML corpus config at path. An existing file is
// only replaced when force is set.
func (c *Corpus) WriteFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding corpus config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// FindRoot walks up from dir looking for a corpus config file and returns
// the directory holding it. When none is found, dir itself is returned.
func FindRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for cur := abs; ; {
		for _, ext := range []string{"yaml", "yml", "json", "toml"} {
			if _, err := os.Stat(filepath.Join(cur, branding.CorpusFile()+"."+ext)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs
		}
		cur = parent
	}
}
