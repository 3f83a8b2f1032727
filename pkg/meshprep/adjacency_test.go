package meshprep

import "testing"

func checkSymmetric(t *testing.T, adj []uint32) {
	t.Helper()
	for i, nb := range adj {
		if nb == NoNeighbor {
			continue
		}
		self := uint32(i / 3)
		found := false
		for k := 0; k < 3; k++ {
			if adj[3*nb+uint32(k)] == self {
				found = true
			}
		}
		if !found {
			t.Errorf("triangle %d sees %d across edge %d, but not the other way", self, nb, i%3)
		}
	}
}

func TestAdjacencyGrid(t *testing.T) {
	verts, indices := gridVertices(3)
	f := StandardFormat()
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), indices, 0)

	adj := m.Adjacency()
	if len(adj) != 3*m.TriangleCount() {
		t.Fatalf("expected %d entries, got %d", 3*m.TriangleCount(), len(adj))
	}
	checkSymmetric(t, adj)

	// A 3x3 grid has 12 boundary edges.
	boundary := 0
	for _, nb := range adj {
		if nb == NoNeighbor {
			boundary++
		}
	}
	if boundary != 12 {
		t.Errorf("expected 12 boundary edges, got %d", boundary)
	}

	// Triangles 0 and 1 share the quad diagonal: edge 2 of triangle 0
	// (corner 2 back to corner 0) and edge 0 of triangle 1.
	if adj[2] != 1 || adj[3] != 0 {
		t.Errorf("diagonal not connected: adj[2]=%d adj[3]=%d", adj[2], adj[3])
	}
}

func TestAdjacencyClosedBox(t *testing.T) {
	m := prepareBox(t)
	adj := m.Adjacency()
	for i, nb := range adj {
		if nb == NoNeighbor {
			t.Errorf("edge %d of triangle %d has no neighbor on a closed box", i%3, i/3)
		}
	}
	checkSymmetric(t, adj)
}

func TestAdjacencyMatchesPositions(t *testing.T) {
	// Two triangles sharing an edge through distinct but coincident vertices,
	// one of them using -0.
	verts := []testVertex{
		{pos: v3(0, 0, 0)}, {pos: v3(1, 0, 0)}, {pos: v3(0, 1, 0)},
		{pos: v3(1, 0, 0)}, {pos: v3(1, 1, 0)}, {pos: v3(-0.0, 1, 0)},
	}
	verts[5].pos.X = -verts[5].pos.X

	f := MustFormat(attrPos)
	m := newTestMesh(t, f)
	addIndexed(t, m, packSource(f, verts), []uint32{0, 1, 2, 3, 4, 5}, 0)

	adj := m.Adjacency()
	if adj[1] != 1 || adj[5] != 0 {
		t.Errorf("coincident edge not connected: %v", adj)
	}
}

func TestAdjacencyDegenerate(t *testing.T) {
	verts := []testVertex{
		{pos: v3(0, 0, 0)}, {pos: v3(1, 0, 0)}, {pos: v3(0, 1, 0)},
		{pos: v3(2, 0, 0)},
	}
	f := MustFormat(attrPos)
	m := newTestMesh(t, f)
	// The second triangle is collinear.
	addIndexed(t, m, packSource(f, verts), []uint32{0, 1, 2, 0, 3, 1}, 0)

	adj := m.Adjacency()
	for k := 3; k < 6; k++ {
		if adj[k] != NoNeighbor {
			t.Errorf("degenerate triangle edge %d should have no neighbor, got %d", k-3, adj[k])
		}
	}
	if !m.Triangles()[1].Degenerate() {
		t.Error("collinear triangle should be flagged degenerate")
	}
	checkSymmetric(t, adj)
}
