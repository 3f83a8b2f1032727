package meshprep

import "testing"

func TestSubsetsPartitionByGroup(t *testing.T) {
	verts, indices := gridVertices(3)
	f := StandardFormat()
	m := newTestMesh(t, f)
	src := packSource(f, verts)

	// Interleave the grid rows over three data groups.
	groups := []uint32{5, 1, 3}
	perRow := 6 * 3
	want := make(map[uint32]int)
	for row := 0; row < 3; row++ {
		g := groups[row]
		addIndexed(t, m, src, indices[row*perRow:(row+1)*perRow], g)
		want[g] += 6
	}
	if err := m.Finalize(DefaultFinalizeOptions()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	subsets := m.Subsets()
	if len(subsets) != 3 {
		t.Fatalf("expected 3 subsets, got %d", len(subsets))
	}
	next := 0
	for i, s := range subsets {
		if i > 0 && subsets[i-1].DataGroup >= s.DataGroup {
			t.Errorf("subsets not sorted by group: %d then %d", subsets[i-1].DataGroup, s.DataGroup)
		}
		if s.FaceStart != next {
			t.Errorf("subset %d starts at %d, expected %d", i, s.FaceStart, next)
		}
		next += s.FaceCount
		if s.FaceCount != want[s.DataGroup] {
			t.Errorf("group %d: expected %d faces, got %d", s.DataGroup, want[s.DataGroup], s.FaceCount)
		}
		if s.Palette != -1 {
			t.Errorf("unskinned subset has palette %d", s.Palette)
		}
		for _, v := range m.Indices()[3*s.FaceStart : 3*(s.FaceStart+s.FaceCount)] {
			if int(v) < s.VertexStart || int(v) >= s.VertexStart+s.VertexCount {
				t.Errorf("subset %d: index %d outside [%d,%d)", i, v, s.VertexStart, s.VertexStart+s.VertexCount)
			}
		}

		ids := m.SubsetsForGroup(s.DataGroup)
		if len(ids) != 1 || ids[0] != i {
			t.Errorf("SubsetsForGroup(%d): got %v, expected [%d]", s.DataGroup, ids, i)
		}
	}
	if next != m.TriangleCount() {
		t.Errorf("subsets cover %d faces of %d", next, m.TriangleCount())
	}
	if m.SubsetsForGroup(2) != nil {
		t.Error("unknown group should have no subsets")
	}
}

func TestSortSubsetsByPalette(t *testing.T) {
	tris := []Triangle{
		{V: [3]uint32{4, 5, 6}, DataGroup: 0, Palette: 1},
		{V: [3]uint32{0, 1, 2}, DataGroup: 0, Palette: 0},
		{V: [3]uint32{7, 8, 9}, DataGroup: 1, Palette: 2},
		{V: [3]uint32{1, 2, 3}, DataGroup: 0, Palette: 0, Flags: TriangleDegenerate},
	}
	out := sortSubsets(tris)

	if len(out.subsets) != 3 {
		t.Fatalf("expected 3 subsets, got %d", len(out.subsets))
	}
	want := []Subset{
		{DataGroup: 0, Palette: 0, FaceStart: 0, FaceCount: 2, VertexStart: 0, VertexCount: 4},
		{DataGroup: 0, Palette: 1, FaceStart: 2, FaceCount: 1, VertexStart: 4, VertexCount: 3},
		{DataGroup: 1, Palette: 2, FaceStart: 3, FaceCount: 1, VertexStart: 7, VertexCount: 3},
	}
	for i := range want {
		if out.subsets[i] != want[i] {
			t.Errorf("subset %d: expected %+v, got %+v", i, want[i], out.subsets[i])
		}
	}
	if out.flags[1] != TriangleDegenerate {
		t.Errorf("degenerate flag should follow its triangle: %v", out.flags)
	}
	if len(out.groups[0]) != 2 || len(out.groups[1]) != 1 {
		t.Errorf("unexpected group index %v", out.groups)
	}
}
