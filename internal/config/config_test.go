package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Prepare defaults
	if !cfg.Prepare.Weld {
		t.Error("expected weld to be enabled by default")
	}
	if cfg.Prepare.WeldTolerance != 0 {
		t.Errorf("expected weld tolerance 0, got %v", cfg.Prepare.WeldTolerance)
	}
	if !cfg.Prepare.OptimizeCache {
		t.Error("expected cache optimization to be enabled by default")
	}
	if cfg.Prepare.CacheSize != 32 {
		t.Errorf("expected cache size 32, got %d", cfg.Prepare.CacheSize)
	}
	if cfg.Prepare.MaxBlendTransforms != 32 {
		t.Errorf("expected palette capacity 32, got %d", cfg.Prepare.MaxBlendTransforms)
	}

	// Format defaults
	if !cfg.Format.Normal || !cfg.Format.Tangent || !cfg.Format.TangentW {
		t.Error("expected normal and 4-component tangent by default")
	}
	if cfg.Format.Bitangent {
		t.Error("expected no bitangent by default")
	}

	// Output defaults
	if cfg.Output.Binary {
		t.Error("expected text glTF by default")
	}
	if cfg.Output.Generator != "meshprep" {
		t.Errorf("expected generator 'meshprep', got %s", cfg.Output.Generator)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "meshprep.yaml")

	yamlContent := `
prepare:
  weld: false
  weld_tolerance: 0.001
  force_normals: true
  cache_size: 24
  max_blend_transforms: 64

format:
  bitangent: true
  tangent_w: false
  texcoord1: true

import:
  bake_transforms: false

output:
  binary: true

logging:
  level: "debug"
  log_file: "meshprep.log"
  json: true
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Prepare.Weld {
		t.Error("expected weld to be false")
	}
	if cfg.Prepare.WeldTolerance != 0.001 {
		t.Errorf("expected weld tolerance 0.001, got %v", cfg.Prepare.WeldTolerance)
	}
	if !cfg.Prepare.ForceNormals {
		t.Error("expected force_normals to be true")
	}
	if cfg.Prepare.CacheSize != 24 {
		t.Errorf("expected cache size 24, got %d", cfg.Prepare.CacheSize)
	}
	if cfg.Prepare.MaxBlendTransforms != 64 {
		t.Errorf("expected palette capacity 64, got %d", cfg.Prepare.MaxBlendTransforms)
	}
	// Keys absent from the file keep their defaults.
	if !cfg.Prepare.OptimizeCache {
		t.Error("expected optimize_cache to keep its default")
	}

	if !cfg.Format.Bitangent || cfg.Format.TangentW || !cfg.Format.TexCoord1 {
		t.Errorf("unexpected format section %+v", cfg.Format)
	}
	if cfg.Import.BakeTransforms {
		t.Error("expected bake_transforms to be false")
	}
	if !cfg.Output.Binary {
		t.Error("expected binary output")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.LogFile != "meshprep.log" || !cfg.Logging.JSON {
		t.Errorf("unexpected logging section %+v", cfg.Logging)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad syntax", "prepare:\n  cache_size: not a number\n  invalid syntax here\n"},
		{"unknown key", "prepare:\n  cache_sise: 16\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "invalid.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if err := loadFromFile(Default(), configPath); err == nil {
				t.Error("expected error loading invalid YAML, got nil")
			}
		})
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("empty file should load: %v", err)
	}
	if cfg.Prepare.CacheSize != 32 {
		t.Errorf("expected defaults to survive, got cache size %d", cfg.Prepare.CacheSize)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative tolerance", func(c *Config) { c.Prepare.WeldTolerance = -0.5 }},
		{"tiny cache", func(c *Config) { c.Prepare.CacheSize = 2 }},
		{"zero palette", func(c *Config) { c.Prepare.MaxBlendTransforms = 0 }},
		{"huge palette", func(c *Config) { c.Prepare.MaxBlendTransforms = 70000 }},
		{"handedness without tangent", func(c *Config) { c.Format.Tangent = false }},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// A tiny cache is fine when optimization is off.
	cfg := Default()
	cfg.Prepare.OptimizeCache = false
	cfg.Prepare.CacheSize = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPrepareOptions(t *testing.T) {
	cfg := Default()
	cfg.Prepare.WeldTolerance = 0.01
	cfg.Prepare.ForceTangents = true
	cfg.Prepare.MaxBlendTransforms = 48

	opts := cfg.PrepareOptions()
	want := meshprep.DefaultFinalizeOptions()
	want.WeldTolerance = 0.01
	want.ForceTangents = true
	want.MaxBlendTransforms = 48
	if opts != want {
		t.Errorf("expected %+v, got %+v", want, opts)
	}
}

func TestVertexFormat(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		skinned bool
		want    string
	}{
		{"default", func(*Config) {}, false, "Position:3f32 Normal:3f32 Tangent:4f32 TexCoord0:2f32"},
		{"compact skinned", func(*Config) {}, true, "Position:3f32 Normal:3f32 Tangent:4f32 TexCoord0:2f32"},
		{"float blend", func(c *Config) { c.Format.CompactBlend = false }, true,
			"Position:3f32 Normal:3f32 Tangent:4f32 TexCoord0:2f32 BlendWeight:4f32 BlendIndices:4u16"},
		{"full frame", func(c *Config) {
			c.Format.TangentW = false
			c.Format.Bitangent = true
			c.Format.TexCoord1 = true
		}, false, "Position:3f32 Normal:3f32 Tangent:3f32 Bitangent:3f32 TexCoord0:2f32 TexCoord1:2f32"},
		{"positions only", func(c *Config) {
			c.Format.Normal = false
			c.Format.Tangent = false
			c.Format.TangentW = false
		}, false, "Position:3f32 TexCoord0:2f32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := cfg.VertexFormat(tt.skinned).String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "meshprep.yaml")
	if err := os.WriteFile(configPath, []byte("prepare:\n  cache_size: 16\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path == "" {
		t.Error("expected to find meshprep.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "weld tolerance flag",
			setup: func() { *flagWeldTolerance = 0.25 },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Prepare.WeldTolerance != 0.25 {
					t.Errorf("expected weld tolerance 0.25, got %v", cfg.Prepare.WeldTolerance)
				}
			},
			teardown: func() { *flagWeldTolerance = -1 },
		},
		{
			name:  "no-weld flag",
			setup: func() { *flagNoWeld = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Prepare.Weld {
					t.Error("expected weld to be disabled")
				}
			},
			teardown: func() { *flagNoWeld = false },
		},
		{
			name: "cache and palette size flags",
			setup: func() {
				*flagCacheSize = 16
				*flagPaletteSize = 80
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Prepare.CacheSize != 16 {
					t.Errorf("expected cache size 16, got %d", cfg.Prepare.CacheSize)
				}
				if cfg.Prepare.MaxBlendTransforms != 80 {
					t.Errorf("expected palette capacity 80, got %d", cfg.Prepare.MaxBlendTransforms)
				}
			},
			teardown: func() {
				*flagCacheSize = 0
				*flagPaletteSize = 0
			},
		},
		{
			name: "force flags",
			setup: func() {
				*flagForceNormals = true
				*flagForceTangents = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Prepare.ForceNormals || !cfg.Prepare.ForceTangents {
					t.Error("expected forced normals and tangents")
				}
			},
			teardown: func() {
				*flagForceNormals = false
				*flagForceTangents = false
			},
		},
		{
			name:  "binary flag",
			setup: func() { *flagBinary = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Output.Binary {
					t.Error("expected binary output")
				}
			},
			teardown: func() { *flagBinary = false },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
prepare:
  cache_size: 24
  max_blend_transforms: 48
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagCacheSize = 16
	defer func() {
		*flagConfig = ""
		*flagCacheSize = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Cache size comes from the flag, not the file.
	if cfg.Prepare.CacheSize != 16 {
		t.Errorf("expected cache size 16 from flag, got %d", cfg.Prepare.CacheSize)
	}
	// Palette capacity comes from the file since no flag overrides it.
	if cfg.Prepare.MaxBlendTransforms != 48 {
		t.Errorf("expected palette capacity 48 from file, got %d", cfg.Prepare.MaxBlendTransforms)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("prepare:\n  weld_tolerance: -1\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); err == nil {
		t.Error("expected Load to reject a negative weld tolerance")
	}
}

func TestSaveAndWrite(t *testing.T) {
	cfg := Default()
	cfg.Prepare.CacheSize = 20
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Prepare.CacheSize != 20 {
		t.Errorf("expected cache size 20 after reload, got %d", loaded.Prepare.CacheSize)
	}

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "cache_size: 20") {
		t.Errorf("expected YAML output to contain the cache size, got:\n%s", buf.String())
	}
}
