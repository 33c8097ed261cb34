package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSampleConfigParses(t *testing.T) {
	cfg, err := Parse([]byte(Template()))
	if err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Listen != ":3000" {
		t.Fatalf("expected listen :3000, got %q", cfg.Listen)
	}
	if cfg.ShutdownTimeout.Duration != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if len(cfg.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cfg.Routes))
	}

	rules, err := cfg.Routes[0].Rules()
	if err != nil {
		t.Fatalf("route rules: %v", err)
	}
	if rules.Name != "handlerHome" {
		t.Fatalf("expected route name handlerHome, got %q", rules.Name)
	}
	c11 := rules.Slot("11")
	if c11 == nil || !c11.Content.Multi || c11.Data.Len() != 2 {
		t.Fatalf("c11 not parsed as a sequence of 2: %+v", c11)
	}
	if got := c11.Data.At(1)["testString"]; got != "pear theft" {
		t.Fatalf("expected positional data, got %v", got)
	}
	flags, ok := rules.Flags("2")
	if !ok || !flags.First() || !flags.Last() {
		t.Fatalf("unexpected c2 flags %v", flags)
	}
}

func TestDefaultsFillEmptyFields(t *testing.T) {
	cfg, err := Parse([]byte(`listen = ":8080"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen not kept: %q", cfg.Listen)
	}
	if cfg.SrcDir != DefaultSrcDir || cfg.Layout != DefaultLayout || cfg.CSSMount != DefaultCSSMount {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.AssetDiscovery != "scan" {
		t.Fatalf("expected scan discovery, got %q", cfg.AssetDiscovery)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"mode":      `asset_discovery = "guess"`,
		"pattern":   "[[routes]]\npattern = \"home\"",
		"duplicate": "[[routes]]\npattern = \"/\"\n[[routes]]\npattern = \"/\"",
		"flags":     "[[routes]]\npattern = \"/\"\n[routes.display_rules]\nc1 = [true]",
		"escape":    `components_dir = "../elsewhere"`,
	}
	for name, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected a validation error", name)
		}
	}
}

func TestRouteNameFallsBackToPattern(t *testing.T) {
	rules, err := Route{Pattern: "/about"}.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if rules.Name != "/about" {
		t.Fatalf("expected pattern as name, got %q", rules.Name)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.Root() != "." {
		t.Fatalf("unexpected defaults: %+v root=%s", cfg, cfg.Root())
	}
}

func TestLoadConfigResolvesAgainstFileDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.toml")
	if err := os.WriteFile(path, []byte("src_dir = \"site\"\npublic_dir = \"/srv/public\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got, want := cfg.ComponentsPath(), filepath.Join(dir, "site", "components"); got != want {
		t.Fatalf("ComponentsPath = %s, want %s", got, want)
	}
	if got, want := cfg.ViewsPath(), filepath.Join(dir, "site", "views"); got != want {
		t.Fatalf("ViewsPath = %s, want %s", got, want)
	}
	if cfg.PublicPath() != "/srv/public" {
		t.Fatalf("absolute paths must be kept, got %s", cfg.PublicPath())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := GetDefaultConfig()
	cfg.ShutdownTimeout = Duration{3 * time.Second}
	cfg.Routes = []Route{{Pattern: "/", Name: "home", DisplayRules: map[string]any{"c21_content": "<p>hi</p>"}}}
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `shutdown_timeout = '3s'`) && !strings.Contains(string(data), `shutdown_timeout = "3s"`) {
		t.Fatalf("duration not written as text:\n%s", data)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.ShutdownTimeout.Duration != 3*time.Second || len(loaded.Routes) != 1 {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
}

func TestSaveTemplateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := GetDefaultConfig().SaveTemplateConfig(path); err != nil {
		t.Fatalf("SaveTemplateConfig: %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("written template does not load: %v", err)
	}
}
