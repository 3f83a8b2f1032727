package meshprep

import "sort"

// Subset is one contiguous draw range of the final index buffer.
type Subset struct {
	DataGroup uint32
	// Palette indexes Mesh.Palettes, -1 for unskinned meshes.
	Palette int

	FaceStart int
	FaceCount int

	// VertexStart and VertexCount bound the vertices the subset references.
	VertexStart int
	VertexCount int
}

type subsetKey struct {
	group   uint32
	palette int32
}

func (a subsetKey) less(b subsetKey) bool {
	if a.group != b.group {
		return a.group < b.group
	}
	return a.palette < b.palette
}

// sortedSubsets is the output of sortSubsets.
type sortedSubsets struct {
	indices []uint32
	flags   []TriangleFlags
	subsets []Subset
	groups  map[uint32][]int
}

// sortSubsets orders triangles by (data group, palette) into contiguous
// ranges and records the vertex window each range touches.
func sortSubsets(tris []Triangle) sortedSubsets {
	counts := make(map[subsetKey]int)
	for _, t := range tris {
		counts[subsetKey{t.DataGroup, t.Palette}]++
	}
	keys := make([]subsetKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := sortedSubsets{
		indices: make([]uint32, 3*len(tris)),
		flags:   make([]TriangleFlags, len(tris)),
		subsets: make([]Subset, len(keys)),
		groups:  make(map[uint32][]int),
	}
	slot := make(map[subsetKey]int, len(keys))
	cursor := make([]int, len(keys))
	maxVertex := make([]uint32, len(keys))
	start := 0
	for i, k := range keys {
		slot[k] = i
		out.subsets[i] = Subset{
			DataGroup:   k.group,
			Palette:     int(k.palette),
			FaceStart:   start,
			FaceCount:   counts[k],
			VertexStart: int(^uint32(0) >> 1),
		}
		out.groups[k.group] = append(out.groups[k.group], i)
		cursor[i] = start
		start += counts[k]
	}

	for _, t := range tris {
		i := slot[subsetKey{t.DataGroup, t.Palette}]
		f := cursor[i]
		cursor[i]++
		copy(out.indices[3*f:3*f+3], t.V[:])
		out.flags[f] = t.Flags
		s := &out.subsets[i]
		for _, v := range t.V {
			if int(v) < s.VertexStart {
				s.VertexStart = int(v)
			}
			if v > maxVertex[i] {
				maxVertex[i] = v
			}
		}
	}
	for i := range out.subsets {
		s := &out.subsets[i]
		s.VertexCount = int(maxVertex[i]) - s.VertexStart + 1
	}
	return out
}
