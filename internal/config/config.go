// Package config handles meshprep configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

// Config holds all pipeline settings.
type Config struct {
	Prepare PrepareConfig `yaml:"prepare"`
	Format  FormatConfig  `yaml:"format"`
	Import  ImportConfig  `yaml:"import"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// PrepareConfig holds the finalize pipeline settings.
type PrepareConfig struct {
	Weld               bool    `yaml:"weld"`
	WeldTolerance      float32 `yaml:"weld_tolerance"`
	ForceNormals       bool    `yaml:"force_normals"`
	ForceTangents      bool    `yaml:"force_tangents"`
	OptimizeCache      bool    `yaml:"optimize_cache"`
	CacheSize          int     `yaml:"cache_size"`
	MaxBlendTransforms int     `yaml:"max_blend_transforms"` // Bone palette capacity
}

// FormatConfig selects the attributes of the prepared vertex format.
// Position and TexCoord0 are always present.
type FormatConfig struct {
	Normal    bool `yaml:"normal"`
	Tangent   bool `yaml:"tangent"`
	TangentW  bool `yaml:"tangent_w"` // Store handedness in tangent.w
	Bitangent bool `yaml:"bitangent"`
	TexCoord1 bool `yaml:"texcoord1"`
	// CompactBlend leaves blend attributes to the skin binder (4 x u8).
	// When false, skinned meshes get float weights and u16 indices.
	CompactBlend bool `yaml:"compact_blend"`
}

// ImportConfig holds glTF import settings.
type ImportConfig struct {
	BakeTransforms bool `yaml:"bake_transforms"` // Apply node world matrices to vertices
	Skin           bool `yaml:"skin"`
}

// OutputConfig holds glTF export settings.
type OutputConfig struct {
	Binary    bool   `yaml:"binary"`
	Generator string `yaml:"generator"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Prepare: PrepareConfig{
			Weld:               true,
			WeldTolerance:      0,
			OptimizeCache:      true,
			CacheSize:          meshprep.DefaultCacheSize,
			MaxBlendTransforms: meshprep.DefaultMaxBlendTransforms,
		},
		Format: FormatConfig{
			Normal:       true,
			Tangent:      true,
			TangentW:     true,
			CompactBlend: true,
		},
		Import: ImportConfig{
			BakeTransforms: true,
			Skin:           true,
		},
		Output: OutputConfig{
			Binary:    false,
			Generator: "meshprep",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate rejects settings the pipeline cannot honor.
func (c *Config) Validate() error {
	p := c.Prepare
	if p.WeldTolerance < 0 {
		return fmt.Errorf("prepare.weld_tolerance must not be negative, got %v", p.WeldTolerance)
	}
	if p.OptimizeCache && p.CacheSize < 4 {
		return fmt.Errorf("prepare.cache_size must be at least 4, got %d", p.CacheSize)
	}
	if p.MaxBlendTransforms < 1 || p.MaxBlendTransforms > 65536 {
		return fmt.Errorf("prepare.max_blend_transforms must be in [1, 65536], got %d", p.MaxBlendTransforms)
	}
	if c.Format.TangentW && !c.Format.Tangent {
		return fmt.Errorf("format.tangent_w requires format.tangent")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// PrepareOptions converts the prepare section for Mesh.Finalize.
func (c *Config) PrepareOptions() meshprep.FinalizeOptions {
	return meshprep.FinalizeOptions{
		ForceNormals:       c.Prepare.ForceNormals,
		ForceTangents:      c.Prepare.ForceTangents,
		Weld:               c.Prepare.Weld,
		WeldTolerance:      c.Prepare.WeldTolerance,
		OptimizeCache:      c.Prepare.OptimizeCache,
		CacheSize:          c.Prepare.CacheSize,
		MaxBlendTransforms: c.Prepare.MaxBlendTransforms,
	}
}

// VertexFormat builds the prepared vertex layout. skinned adds float blend
// attributes up front when CompactBlend is off.
func (c *Config) VertexFormat(skinned bool) *meshprep.Format {
	attrs := []meshprep.Attribute{
		{Usage: meshprep.UsagePosition, Components: 3, Type: meshprep.Float32},
	}
	if c.Format.Normal {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageNormal, Components: 3, Type: meshprep.Float32})
	}
	if c.Format.Tangent {
		n := 3
		if c.Format.TangentW {
			n = 4
		}
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTangent, Components: n, Type: meshprep.Float32})
	}
	if c.Format.Bitangent {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageBitangent, Components: 3, Type: meshprep.Float32})
	}
	attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTexCoord0, Components: 2, Type: meshprep.Float32})
	if c.Format.TexCoord1 {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTexCoord1, Components: 2, Type: meshprep.Float32})
	}
	if skinned && !c.Format.CompactBlend {
		attrs = append(attrs,
			meshprep.Attribute{Usage: meshprep.UsageBlendWeight, Components: meshprep.MaxInfluences, Type: meshprep.Float32},
			meshprep.Attribute{Usage: meshprep.UsageBlendIndices, Components: meshprep.MaxInfluences, Type: meshprep.Uint16},
		)
	}
	return meshprep.MustFormat(attrs...)
}
