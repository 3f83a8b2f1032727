package meshprep

import (
	"testing"

	"github.com/Faultbox/meshprep/pkg/math"
)

type testVertex struct {
	pos    math.Vec3
	normal math.Vec3
	uv     math.Vec2
}

var (
	attrPos    = Attribute{Usage: UsagePosition, Components: 3, Type: Float32}
	attrNormal = Attribute{Usage: UsageNormal, Components: 3, Type: Float32}
	attrUV     = Attribute{Usage: UsageTexCoord0, Components: 2, Type: Float32}
)

func v3(x, y, z float32) math.Vec3 {
	return math.Vec3{X: x, Y: y, Z: z}
}

func packSource(f *Format, verts []testVertex) Source {
	stride := f.Stride()
	data := make([]byte, len(verts)*stride)
	for i, v := range verts {
		vert := data[i*stride : (i+1)*stride]
		f.Write(vert, UsagePosition, [4]float32{v.pos.X, v.pos.Y, v.pos.Z})
		f.Write(vert, UsageNormal, [4]float32{v.normal.X, v.normal.Y, v.normal.Z})
		f.Write(vert, UsageTexCoord0, [4]float32{v.uv.X, v.uv.Y})
	}
	return Source{Format: f, Data: data}
}

func newTestMesh(t *testing.T, f *Format) *Mesh {
	t.Helper()
	m, err := New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func addIndexed(t *testing.T, m *Mesh, src Source, indices []uint32, group uint32) []uint32 {
	t.Helper()
	remap, err := m.AddTriangles(src, TrianglesFromIndices(indices, group))
	if err != nil {
		t.Fatalf("AddTriangles: %v", err)
	}
	return remap
}

func readVec3(m *Mesh, i int, u Usage) math.Vec3 {
	v, _ := m.Format().Read(m.Vertex(i), u)
	return v3(v[0], v[1], v[2])
}

func near(a, b, tol float32) bool {
	d := a - b
	return d <= tol && d >= -tol
}

func nearVec3(a, b math.Vec3, tol float32) bool {
	return a.MaxAbsDiff(b) <= tol
}

// boxVertices returns a unit cube centered on the origin with 4 vertices per
// face and flat face normals.
func boxVertices() ([]testVertex, []uint32) {
	faces := []struct{ n, u, v math.Vec3 }{
		{v3(1, 0, 0), v3(0, 1, 0), v3(0, 0, 1)},
		{v3(-1, 0, 0), v3(0, 0, 1), v3(0, 1, 0)},
		{v3(0, 1, 0), v3(0, 0, 1), v3(1, 0, 0)},
		{v3(0, -1, 0), v3(1, 0, 0), v3(0, 0, 1)},
		{v3(0, 0, 1), v3(1, 0, 0), v3(0, 1, 0)},
		{v3(0, 0, -1), v3(0, 1, 0), v3(1, 0, 0)},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	var verts []testVertex
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(verts))
		for _, c := range corners {
			p := f.n.Scale(0.5).Add(f.u.Scale(0.5 * c[0])).Add(f.v.Scale(0.5 * c[1]))
			verts = append(verts, testVertex{
				pos:    p,
				normal: f.n,
				uv:     math.Vec2{X: (c[0] + 1) / 2, Y: (c[1] + 1) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return verts, indices
}

// gridVertices returns an n x n quad grid in the XY plane with shared
// vertices, +Z normals and UVs equal to the XY coordinates.
func gridVertices(n int) ([]testVertex, []uint32) {
	var verts []testVertex
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			verts = append(verts, testVertex{
				pos:    v3(float32(x), float32(y), 0),
				normal: v3(0, 0, 1),
				uv:     math.Vec2{X: float32(x), Y: float32(y)},
			})
		}
	}
	var indices []uint32
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			a := y*row + x
			indices = append(indices, a, a+1, a+row+1, a, a+row+1, a+row)
		}
	}
	return verts, indices
}

func prepareBox(t *testing.T) *Mesh {
	t.Helper()
	verts, indices := boxVertices()
	f := StandardFormat()
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), indices, 0)
	if err := m.Finalize(DefaultFinalizeOptions()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return m
}
