package meshprep

// BonePalette is a bounded set of bones that one draw can skin with.
// Vertices of triangles assigned to the palette store palette-local bone
// indices.
type BonePalette struct {
	DataGroup uint32
	// Bones lists global bone indices; the position in the slice is the
	// palette-local index.
	Bones []uint32
	// MaxBlendIndex is the highest blend slot any vertex of the palette uses
	// (0..3).
	MaxBlendIndex int

	lookup map[uint32]int
	// triangles is transient allocation state.
	triangles []uint32
}

func newBonePalette(group uint32) *BonePalette {
	return &BonePalette{DataGroup: group, lookup: make(map[uint32]int)}
}

// LocalIndex translates a global bone index to its index in the palette.
func (p *BonePalette) LocalIndex(bone uint32) (int, bool) {
	if p.lookup == nil {
		for i, b := range p.Bones {
			if b == bone {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := p.lookup[bone]
	return i, ok
}

// Len returns the number of bones in the palette.
func (p *BonePalette) Len() int {
	return len(p.Bones)
}

// overlap counts how many of bones (sorted, unique) the palette already holds.
func (p *BonePalette) overlap(bones []uint32) int {
	n := 0
	for _, b := range bones {
		if _, ok := p.lookup[b]; ok {
			n++
		}
	}
	return n
}

func (p *BonePalette) add(bones []uint32) {
	for _, b := range bones {
		if _, ok := p.lookup[b]; ok {
			continue
		}
		p.lookup[b] = len(p.Bones)
		p.Bones = append(p.Bones, b)
	}
}
