package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/displayrules"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultListen          = ":3000"
	DefaultSrcDir          = "src"
	DefaultComponentsDir   = "components"
	DefaultViewsDir        = "views"
	DefaultPublicDir       = "public"
	DefaultCSSMount        = "css"
	DefaultLayout          = "layout.html"
	DefaultSassBinary      = "sass"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config describes one site: where its sources live, how it is served and
// the route table.
type Config struct {
	Listen             string   `toml:"listen"`
	Dev                bool     `toml:"dev"`
	SrcDir             string   `toml:"src_dir"`
	ComponentsDir      string   `toml:"components_dir"`
	ViewsDir           string   `toml:"views_dir"`
	PublicDir          string   `toml:"public_dir"`
	CSSMount           string   `toml:"css_mount"`
	Layout             string   `toml:"layout"`
	AssetDiscovery     string   `toml:"asset_discovery"`
	ParallelComponents bool     `toml:"parallel_components"`
	SassBinary         string   `toml:"sass_binary"`
	ShutdownTimeout    Duration `toml:"shutdown_timeout"`
	Routes             []Route  `toml:"routes"`

	// root is the directory relative paths are resolved against: the
	// directory of the loaded file, or the working directory.
	root string
}

// Route maps a URL pattern onto display rules in wire form.
type Route struct {
	Pattern      string         `toml:"pattern"`
	Name         string         `toml:"name"`
	DisplayRules map[string]any `toml:"display_rules"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.SrcDir == "" {
		c.SrcDir = DefaultSrcDir
	}
	if c.ComponentsDir == "" {
		c.ComponentsDir = DefaultComponentsDir
	}
	if c.ViewsDir == "" {
		c.ViewsDir = DefaultViewsDir
	}
	if c.PublicDir == "" {
		c.PublicDir = DefaultPublicDir
	}
	if c.CSSMount == "" {
		c.CSSMount = DefaultCSSMount
	}
	if c.Layout == "" {
		c.Layout = DefaultLayout
	}
	if c.AssetDiscovery == "" {
		c.AssetDiscovery = string(assets.ModeScan)
	}
	if c.SassBinary == "" {
		c.SassBinary = DefaultSassBinary
	}
	if c.ShutdownTimeout.Duration == 0 {
		c.ShutdownTimeout = Duration{DefaultShutdownTimeout}
	}
}

// LoadConfig reads a config file. A missing file yields the defaults;
// relative directories are resolved against the file's directory.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}
	config.root = filepath.Dir(configPath)
	return config, nil
}

// Parse decodes and validates a config document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks settings that would otherwise only fail at request time.
func (c *Config) Validate() error {
	if _, err := assets.ParseMode(c.AssetDiscovery); err != nil {
		return err
	}
	for _, dir := range []string{c.ComponentsDir, c.ViewsDir, c.CSSMount} {
		if strings.Contains(dir, "\\") || strings.HasPrefix(dir, "/") || strings.Contains(dir, "..") {
			return fmt.Errorf("%q must be a relative slash-separated path", dir)
		}
	}
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("route %d: pattern %q must start with /", i, r.Pattern)
		}
		if seen[r.Pattern] {
			return fmt.Errorf("route %d: duplicate pattern %s", i, r.Pattern)
		}
		seen[r.Pattern] = true
		if _, err := r.Rules(); err != nil {
			return fmt.Errorf("route %s: %w", r.Pattern, err)
		}
	}
	return nil
}

// Rules parses the route's display rules. The route name fills thisName
// when the rules do not carry one.
func (r Route) Rules() (*displayrules.DisplayRules, error) {
	rules, err := displayrules.FromMap(r.DisplayRules)
	if err != nil {
		return nil, err
	}
	if rules.Name == "" {
		rules.Name = r.Name
	}
	if rules.Name == "" {
		rules.Name = r.Pattern
	}
	return rules, nil
}

// Root is the directory relative paths are resolved against.
func (c *Config) Root() string {
	if c.root == "" {
		return "."
	}
	return c.root
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Root(), dir)
}

// SourcePath is the absolute or root-relative source directory.
func (c *Config) SourcePath() string {
	return c.resolve(c.SrcDir)
}

// ViewsPath is the directory holding the layout and partials.
func (c *Config) ViewsPath() string {
	return filepath.Join(c.SourcePath(), filepath.FromSlash(c.ViewsDir))
}

// ComponentsPath is the directory holding component sources.
func (c *Config) ComponentsPath() string {
	return filepath.Join(c.SourcePath(), filepath.FromSlash(c.ComponentsDir))
}

// PublicPath is the directory served as static files.
func (c *Config) PublicPath() string {
	return c.resolve(c.PublicDir)
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(configTemplate), 0644)
}

// Template returns the sample configuration written by init.
func Template() string {
	return configTemplate
}

// GetConfigDir returns the configuration directory for slotweave
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "slotweave")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
