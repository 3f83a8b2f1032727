package meshprep

import (
	gomath "math"

	"github.com/Faultbox/meshprep/pkg/math"
)

// NoNeighbor marks a boundary edge, or any edge of a degenerate triangle,
// in an adjacency table.
const NoNeighbor = ^uint32(0)

type posKey [3]uint32

type edgeKey struct {
	from, to posKey
}

func keyOf(p math.Vec3) posKey {
	return posKey{floatKey(p.X), floatKey(p.Y), floatKey(p.Z)}
}

// floatKey folds -0 onto +0 so both compare equal.
func floatKey(f float32) uint32 {
	if f == 0 {
		return 0
	}
	return gomath.Float32bits(f)
}

// triangleSource abstracts over preparation and final storage.
type triangleSource interface {
	triangleCount() int
	corner(t, k int) math.Vec3
	skip(t int) bool
}

// buildAdjacency returns 3 neighbor entries per triangle. Entry 3t+k is the
// triangle across edge k (corner k to corner k+1). Edges are matched by
// endpoint positions so coincident but unmerged vertices still connect.
// When more than one triangle owns the same directed edge the first wins.
func buildAdjacency(src triangleSource) []uint32 {
	adj, _ := adjacencyWithKeys(src)
	return adj
}

// adjacencyWithKeys also returns the position key of every corner, which the
// normal generator uses to find a shared vertex in a neighbor.
func adjacencyWithKeys(src triangleSource) ([]uint32, [][3]posKey) {
	n := src.triangleCount()
	keys := make([][3]posKey, n)
	owners := make(map[edgeKey]uint32, 3*n)
	for t := 0; t < n; t++ {
		if src.skip(t) {
			continue
		}
		for k := 0; k < 3; k++ {
			keys[t][k] = keyOf(src.corner(t, k))
		}
		for k := 0; k < 3; k++ {
			e := edgeKey{keys[t][k], keys[t][(k+1)%3]}
			if _, ok := owners[e]; !ok {
				owners[e] = uint32(t)
			}
		}
	}

	adj := make([]uint32, 3*n)
	for t := 0; t < n; t++ {
		for k := 0; k < 3; k++ {
			adj[3*t+k] = NoNeighbor
		}
		if src.skip(t) {
			continue
		}
		for k := 0; k < 3; k++ {
			rev := edgeKey{keys[t][(k+1)%3], keys[t][k]}
			if o, ok := owners[rev]; ok && o != uint32(t) {
				adj[3*t+k] = o
			}
		}
	}
	return adj, keys
}

type prepTriangles struct {
	buf  *vertexBuffer
	tris []Triangle
}

func (p prepTriangles) triangleCount() int { return len(p.tris) }

func (p prepTriangles) corner(t, k int) math.Vec3 {
	return p.buf.position(p.tris[t].V[k])
}

func (p prepTriangles) skip(t int) bool { return p.tris[t].Degenerate() }

type finalTriangles struct {
	format   *Format
	vertices []byte
	indices  []uint32
	flags    []TriangleFlags
}

func (f finalTriangles) triangleCount() int { return len(f.indices) / 3 }

func (f finalTriangles) corner(t, k int) math.Vec3 {
	s := f.format.Stride()
	i := int(f.indices[3*t+k])
	v, _ := f.format.Read(f.vertices[i*s:(i+1)*s], UsagePosition)
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func (f finalTriangles) skip(t int) bool {
	return t < len(f.flags) && f.flags[t]&TriangleDegenerate != 0
}

// Adjacency computes the triangle adjacency table. In StatePreparing it works
// on the preparation buffer (refreshing degenerate flags first), in
// StatePrepared on the final buffers. Triangle numbering follows Triangles or
// Indices respectively.
func (m *Mesh) Adjacency() []uint32 {
	if m.state == StatePrepared {
		return buildAdjacency(finalTriangles{
			format:   m.format,
			vertices: m.vertices,
			indices:  m.indices,
			flags:    m.faceFlags,
		})
	}
	m.flagDegenerates()
	return buildAdjacency(prepTriangles{buf: m.buf, tris: m.tris})
}
