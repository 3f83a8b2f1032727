package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging")
	flagWeldTolerance = flag.Float64("weld-tolerance", -1, "Weld distance (negative keeps the configured value)")
	flagNoWeld        = flag.Bool("no-weld", false, "Disable vertex welding")
	flagCacheSize     = flag.Int("cache-size", 0, "Simulated vertex cache size")
	flagPaletteSize   = flag.Int("palette-size", 0, "Bone palette capacity")
	flagForceNormals  = flag.Bool("force-normals", false, "Regenerate normals supplied by the source")
	flagForceTangents = flag.Bool("force-tangents", false, "Regenerate tangents supplied by the source")
	flagBinary        = flag.Bool("binary", false, "Write binary glTF (.glb)")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWeldTolerance >= 0 {
		cfg.Prepare.WeldTolerance = float32(*flagWeldTolerance)
	}
	if *flagNoWeld {
		cfg.Prepare.Weld = false
	}
	if *flagCacheSize > 0 {
		cfg.Prepare.CacheSize = *flagCacheSize
	}
	if *flagPaletteSize > 0 {
		cfg.Prepare.MaxBlendTransforms = *flagPaletteSize
	}
	if *flagForceNormals {
		cfg.Prepare.ForceNormals = true
	}
	if *flagForceTangents {
		cfg.Prepare.ForceTangents = true
	}
	if *flagBinary {
		cfg.Output.Binary = true
	}
}
