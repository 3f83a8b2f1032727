// meshprep prepares glTF meshes for rendering: normals, tangents, welding,
// bone palettes, subsets and vertex cache order.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/internal/config"
	"github.com/Faultbox/meshprep/internal/gltfio"
	"github.com/Faultbox/meshprep/internal/logger"
)

func main() {
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	opts := logger.Options{Level: cfg.Logging.Level, Encoding: logger.EncodingConsole, Console: true}
	if cfg.Logging.JSON {
		opts.Encoding = logger.EncodingJSON
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	args = args[1:]
	logger.Sugar.Debugf("command %s, config %+v", command, cfg)

	switch command {
	case "prepare", "p":
		err = cmdPrepare(cfg, args)
	case "info":
		err = cmdInfo(cfg, args)
	case "adjacency", "adj":
		err = cmdAdjacency(cfg, args)
	case "dump":
		err = cmdDump(cfg, args)
	case "config":
		err = cfg.Write(os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshprep - glTF mesh preparation pipeline

Usage:
  meshprep [flags] <command> [args]

Commands:
  prepare <in> <out>   Prepare every mesh and write .gltf or .glb
  info <in>            Show mesh statistics before and after preparation
  adjacency <in>       Report boundary edges per mesh
  dump <in>            Dump prepared subsets and palettes
  config               Print the effective configuration
  help                 Show this help

Flags:
  -config <file>       Config file (default ./meshprep.yaml)
  -debug               Enable debug logging
  -weld-tolerance <d>  Weld distance
  -no-weld             Disable vertex welding
  -cache-size <n>      Simulated vertex cache size
  -palette-size <n>    Bone palette capacity
  -force-normals       Regenerate source normals
  -force-tangents      Regenerate source tangents
  -binary              Write binary glTF

Examples:
  meshprep prepare character.gltf character.glb
  meshprep -palette-size 24 info character.glb
  meshprep -weld-tolerance 0.0001 adjacency terrain.glb`)
}

func loadOptions(cfg *config.Config) gltfio.LoadOptions {
	return gltfio.LoadOptions{
		Format:         cfg.VertexFormat,
		BakeTransforms: cfg.Import.BakeTransforms,
		Skin:           cfg.Import.Skin,
		Logger:         logger.Named("gltfio"),
	}
}

func loadScene(cfg *config.Config, args []string, usage string) (*gltfio.Scene, error) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshprep "+usage)
		os.Exit(1)
	}
	return gltfio.Load(args[0], loadOptions(cfg))
}

// prepareScene finalizes every mesh with the configured options.
func prepareScene(cfg *config.Config, scene *gltfio.Scene) error {
	opts := cfg.PrepareOptions()
	for _, m := range scene.Meshes {
		if err := m.Mesh.Finalize(opts); err != nil {
			return fmt.Errorf("mesh %q: %w", m.Name, err)
		}
		logger.Info("mesh prepared",
			zap.String("mesh", m.Name),
			zap.Int("vertices", m.Mesh.VertexCount()),
			zap.Int("triangles", m.Mesh.TriangleCount()),
			zap.Int("subsets", len(m.Mesh.Subsets())),
			zap.Int("palettes", len(m.Mesh.Palettes())))
	}
	return nil
}

func cmdPrepare(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshprep prepare <in> <out>")
		os.Exit(1)
	}
	scene, err := gltfio.Load(args[0], loadOptions(cfg))
	if err != nil {
		return err
	}
	if err := prepareScene(cfg, scene); err != nil {
		return err
	}

	out := args[1]
	binary := cfg.Output.Binary || strings.EqualFold(filepath.Ext(out), ".glb")
	err = gltfio.Save(out, scene, gltfio.SaveOptions{
		Binary:    binary,
		Generator: cfg.Output.Generator,
		Logger:    logger.Named("gltfio"),
	})
	if err != nil {
		return err
	}
	logger.Info("scene written", zap.String("path", out), zap.Bool("binary", binary))
	return nil
}
