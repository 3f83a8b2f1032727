package main

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/Faultbox/meshprep/internal/config"
	"github.com/Faultbox/meshprep/internal/gltfio"
	"github.com/Faultbox/meshprep/pkg/meshprep"
)

var spewConfig = func() *spew.ConfigState {
	c := spew.NewDefaultConfig()
	c.DisableCapacities = true
	c.DisablePointerAddresses = true
	c.SortKeys = true
	return c
}()

func cmdInfo(cfg *config.Config, args []string) error {
	scene, err := loadScene(cfg, args, "info <in>")
	if err != nil {
		return err
	}
	fmt.Printf("File:    %s\n", args[0])
	fmt.Printf("Meshes:  %d\n", len(scene.Meshes))
	if scene.Armature != nil {
		fmt.Printf("Bones:   %d\n", len(scene.Armature.Nodes))
	}
	fmt.Println()
	writeSourceInfo(os.Stdout, scene)

	if err := prepareScene(cfg, scene); err != nil {
		return err
	}
	fmt.Println()
	writePreparedInfo(os.Stdout, scene)
	return nil
}

func writeSourceInfo(w io.Writer, scene *gltfio.Scene) {
	fmt.Fprintln(w, "Source:")
	fmt.Fprintf(w, "  %-20s %8s %8s %6s %7s\n", "mesh", "verts", "tris", "groups", "skinned")
	for _, m := range scene.Meshes {
		fmt.Fprintf(w, "  %-20s %8d %8d %6d %7t\n",
			m.Name, m.Mesh.VertexCount(), m.Mesh.TriangleCount(), len(m.Groups), m.Skinned)
		if b := m.Mesh.Bounds(); !b.Empty() {
			fmt.Fprintf(w, "    bounds (%.3f %.3f %.3f) - (%.3f %.3f %.3f)\n",
				b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
		}
	}
}

func writePreparedInfo(w io.Writer, scene *gltfio.Scene) {
	fmt.Fprintln(w, "Prepared:")
	fmt.Fprintf(w, "  %-20s %8s %8s %7s %8s\n", "mesh", "verts", "tris", "subsets", "palettes")
	for _, m := range scene.Meshes {
		fmt.Fprintf(w, "  %-20s %8d %8d %7d %8d\n",
			m.Name, m.Mesh.VertexCount(), m.Mesh.TriangleCount(), len(m.Mesh.Subsets()), len(m.Mesh.Palettes()))
		fmt.Fprintf(w, "    format %s (%d bytes)\n", m.Mesh.Format(), m.Mesh.Format().Stride())
	}
}

func cmdAdjacency(cfg *config.Config, args []string) error {
	scene, err := loadScene(cfg, args, "adjacency <in>")
	if err != nil {
		return err
	}
	writeAdjacency(os.Stdout, scene)
	return nil
}

// writeAdjacency reports boundary edges, which mark holes in otherwise
// closed surfaces.
func writeAdjacency(w io.Writer, scene *gltfio.Scene) {
	for _, m := range scene.Meshes {
		adj := m.Mesh.Adjacency()
		open := boundaryEdges(adj)
		state := "closed"
		if open > 0 {
			state = "open"
		}
		fmt.Fprintf(w, "%-20s %8d edges %6d boundary  %s\n", m.Name, len(adj), open, state)
	}
}

func boundaryEdges(adj []uint32) int {
	n := 0
	for _, a := range adj {
		if a == meshprep.NoNeighbor {
			n++
		}
	}
	return n
}

func cmdDump(cfg *config.Config, args []string) error {
	scene, err := loadScene(cfg, args, "dump <in>")
	if err != nil {
		return err
	}
	if err := prepareScene(cfg, scene); err != nil {
		return err
	}
	writeDump(os.Stdout, scene)
	return nil
}

// meshDump is the part of a prepared mesh worth reading by eye.
type meshDump struct {
	Name     string
	Format   string
	Vertices int
	Subsets  []meshprep.Subset
	Palettes [][]uint32
}

func writeDump(w io.Writer, scene *gltfio.Scene) {
	for _, m := range scene.Meshes {
		d := meshDump{
			Name:     m.Name,
			Format:   m.Mesh.Format().String(),
			Vertices: m.Mesh.VertexCount(),
			Subsets:  m.Mesh.Subsets(),
		}
		for _, p := range m.Mesh.Palettes() {
			d.Palettes = append(d.Palettes, p.Bones)
		}
		spewConfig.Fdump(w, d)
	}
}
