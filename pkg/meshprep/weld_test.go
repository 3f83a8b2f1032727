package meshprep

import (
	"testing"

	"github.com/Faultbox/meshprep/pkg/math"
)

// noisyQuad is two triangles whose shared diagonal uses separate vertices
// that differ by a small position noise.
func noisyQuad() ([]testVertex, []uint32) {
	up := v3(0, 0, 1)
	verts := []testVertex{
		{pos: v3(0, 0, 0), normal: up, uv: math.Vec2{X: 0, Y: 0}},
		{pos: v3(1, 0, 0), normal: up, uv: math.Vec2{X: 1, Y: 0}},
		{pos: v3(1, 1, 0), normal: up, uv: math.Vec2{X: 1, Y: 1}},
		{pos: v3(1e-5, 0, 0), normal: up, uv: math.Vec2{X: 0, Y: 0}},
		{pos: v3(1, 1, 1e-5), normal: up, uv: math.Vec2{X: 1, Y: 1}},
		{pos: v3(0, 1, 0), normal: up, uv: math.Vec2{X: 0, Y: 1}},
	}
	return verts, []uint32{0, 1, 2, 3, 4, 5}
}

func TestWeldNoisyQuad(t *testing.T) {
	tests := []struct {
		name      string
		tolerance float32
		want      int
	}{
		{"exact", 0, 6},
		{"below noise", 1e-6, 6},
		{"above noise", 1e-3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verts, indices := noisyQuad()
			f := StandardFormat()
			m := newTestMesh(t, f)
			addIndexed(t, m, packSource(f, verts), indices, 0)

			remap, err := m.Weld(tt.tolerance)
			if err != nil {
				t.Fatalf("Weld: %v", err)
			}
			if m.VertexCount() != tt.want {
				t.Errorf("expected %d vertices, got %d", tt.want, m.VertexCount())
			}
			if m.TriangleCount() != 2 {
				t.Errorf("expected 2 triangles, got %d", m.TriangleCount())
			}
			if tt.want == 6 {
				if remap != nil {
					t.Errorf("expected nil remap when nothing merged")
				}
				return
			}

			if len(remap) != 6 {
				t.Fatalf("expected remap of 6, got %d", len(remap))
			}
			if remap[3] != remap[0] || remap[4] != remap[2] {
				t.Errorf("noisy copies should collapse onto the originals: %v", remap)
			}
			tris := m.Triangles()
			if tris[1].V[0] != tris[0].V[0] || tris[1].V[1] != tris[0].V[2] {
				t.Errorf("second triangle should reuse the diagonal: %v %v", tris[0].V, tris[1].V)
			}
			// The first vertex of a cluster survives.
			if p := readVec3(m, int(remap[0]), UsagePosition); p != v3(0, 0, 0) {
				t.Errorf("survivor moved to %v", p)
			}
		})
	}
}

func TestWeldComparesPositionsOnly(t *testing.T) {
	m := prepareBox(t)
	if err := m.BeginPreparation(nil); err != nil {
		t.Fatalf("BeginPreparation: %v", err)
	}
	// Each corner has three copies with different normals and UVs.
	remap, err := m.Weld(0.5)
	if err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if len(remap) != 24 || m.VertexCount() != 8 {
		t.Fatalf("expected the box to weld to 8 corners, got %d vertices", m.VertexCount())
	}
	if m.TriangleCount() != 12 {
		t.Errorf("expected 12 triangles, got %d", m.TriangleCount())
	}
}

func TestWeldSeamQuad(t *testing.T) {
	up := v3(0, 0, 1)
	verts := []testVertex{
		{pos: v3(0, 0, 0), normal: up, uv: math.Vec2{X: 0, Y: 0}},
		{pos: v3(1, 0, 0), normal: up, uv: math.Vec2{X: 1, Y: 0}},
		{pos: v3(1, 1, 0), normal: up, uv: math.Vec2{X: 1, Y: 1}},
		{pos: v3(0, 0, 0), normal: up, uv: math.Vec2{X: 0.5, Y: 0}},
		{pos: v3(1, 1, 0), normal: up, uv: math.Vec2{X: 0.5, Y: 1}},
		{pos: v3(0, 1, 0), normal: up, uv: math.Vec2{X: 0, Y: 1}},
	}
	tests := []struct {
		name      string
		tolerance float32
		want      int
	}{
		{"exact keeps differing bytes", 0, 6},
		{"tolerance ignores uv", 1e-3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := StandardFormat()
			m := newTestMesh(t, f)
			addIndexed(t, m, packSource(f, verts), []uint32{0, 1, 2, 3, 4, 5}, 0)
			if _, err := m.Weld(tt.tolerance); err != nil {
				t.Fatalf("Weld: %v", err)
			}
			if m.VertexCount() != tt.want {
				t.Errorf("expected %d vertices, got %d", tt.want, m.VertexCount())
			}
		})
	}
}

func TestWeldExactMergesIdenticalVertices(t *testing.T) {
	verts, _ := noisyQuad()
	verts[3].pos = verts[0].pos
	verts[4].pos = verts[2].pos
	f := StandardFormat()
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), []uint32{0, 1, 2, 3, 4, 5}, 0)
	remap, err := m.Weld(0)
	if err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if m.VertexCount() != 4 || remap[3] != remap[0] || remap[4] != remap[2] {
		t.Errorf("expected identical copies to merge: %d vertices, remap %v", m.VertexCount(), remap)
	}
	if got := m.buf.origin[remap[0]]; len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("survivor should carry both origins, got %v", got)
	}
}

// jitteredGrid returns the triangles of an n x n grid where every triangle
// owns its vertices. Copies of a grid point are offset along X by multiples
// of 2e-5.
func jitteredGrid(n int) []testVertex {
	shared, indices := gridVertices(n)
	copies := make(map[uint32]int)
	verts := make([]testVertex, 0, len(indices))
	for _, s := range indices {
		v := shared[s]
		v.pos.X += float32(copies[s]) * 2e-5
		copies[s]++
		verts = append(verts, v)
	}
	return verts
}

func weldedCount(t *testing.T, verts []testVertex, tolerance float32) (*Mesh, int) {
	t.Helper()
	indices := make([]uint32, len(verts))
	for i := range indices {
		indices[i] = uint32(i)
	}
	f := StandardFormat()
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), indices, 0)
	if _, err := m.Weld(tolerance); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	return m, m.VertexCount()
}

func TestWeldMonotonic(t *testing.T) {
	verts := jitteredGrid(4)
	prev := len(verts)
	for _, tol := range []float32{0, 1e-6, 1e-3, 0.1, 0.4} {
		_, n := weldedCount(t, verts, tol)
		if n > prev {
			t.Errorf("tolerance %v: vertex count grew from %d to %d", tol, prev, n)
		}
		prev = n
	}
	if prev != 25 {
		t.Errorf("expected every grid point to collapse to one vertex, got %d", prev)
	}
}

func TestWeldIdempotent(t *testing.T) {
	m, n := weldedCount(t, jitteredGrid(3), 1e-3)
	remap, err := m.Weld(1e-3)
	if err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if remap != nil || m.VertexCount() != n {
		t.Errorf("second weld changed the mesh: %d -> %d", n, m.VertexCount())
	}
}

func TestWeldNegativeToleranceIsExact(t *testing.T) {
	verts, indices := noisyQuad()
	f := StandardFormat()
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), indices, 0)
	if _, err := m.Weld(-1); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if m.VertexCount() != 6 {
		t.Errorf("expected 6 vertices, got %d", m.VertexCount())
	}
}
