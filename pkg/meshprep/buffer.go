package meshprep

import (
	"github.com/Faultbox/meshprep/pkg/math"
)

// NoIndex marks an unused slot in a remap table.
const NoIndex = ^uint32(0)

// VertexFlags records which generated attributes were supplied by the source.
type VertexFlags uint8

const (
	// FlagNormal marks a normal read from the source.
	FlagNormal VertexFlags = 1 << iota
	// FlagBinormal marks a sourced bitangent.
	FlagBinormal
	// FlagTangent marks a sourced tangent.
	FlagTangent
)

// TriangleFlags holds per-triangle state.
type TriangleFlags uint8

const (
	// TriangleDegenerate marks a triangle whose positions are collinear or
	// coincident. It keeps its slot but feeds no generator.
	TriangleDegenerate TriangleFlags = 1 << iota
)

// Triangle is a working triangle of the preparation buffer.
type Triangle struct {
	V         [3]uint32
	DataGroup uint32
	// Palette is the bone palette index, -1 when unskinned.
	Palette int32
	Flags   TriangleFlags
}

// Degenerate reports whether the triangle is flagged degenerate.
func (t Triangle) Degenerate() bool {
	return t.Flags&TriangleDegenerate != 0
}

// vertexBuffer is the staging store for vertices under preparation.
// Vertices are addressed by index only; slices returned by vertex are
// invalidated by any append.
type vertexBuffer struct {
	format *Format
	data   []byte
	flags  []VertexFlags
	// origin lists the ingested vertices each vertex descends from, sorted.
	// Splits and duplicates inherit the list; welding unites the lists of
	// every vertex collapsed into a survivor. Lists are never mutated in
	// place.
	origin [][]uint32
}

func newVertexBuffer(f *Format) *vertexBuffer {
	return &vertexBuffer{format: f}
}

// Len returns the vertex count.
func (b *vertexBuffer) Len() int {
	return len(b.flags)
}

func (b *vertexBuffer) vertex(i uint32) []byte {
	s := b.format.stride
	return b.data[int(i)*s : (int(i)+1)*s]
}

// appendRaw appends one vertex already in the buffer format.
func (b *vertexBuffer) appendRaw(v []byte, flags VertexFlags, origin uint32) uint32 {
	idx := uint32(b.Len())
	b.data = append(b.data, v[:b.format.stride]...)
	b.flags = append(b.flags, flags)
	b.origin = append(b.origin, []uint32{origin})
	return idx
}

// appendConverted appends one vertex given in another format.
func (b *vertexBuffer) appendConverted(src *Format, v []byte, flags VertexFlags, origin uint32) uint32 {
	idx := uint32(b.Len())
	b.data = append(b.data, make([]byte, b.format.stride)...)
	b.flags = append(b.flags, flags)
	b.origin = append(b.origin, []uint32{origin})
	ConvertVertex(b.format, b.vertex(idx), src, v)
	return idx
}

// duplicate appends a copy of vertex i, flags and origin included.
func (b *vertexBuffer) duplicate(i uint32) uint32 {
	s := b.format.stride
	start := int(i) * s
	idx := uint32(b.Len())
	b.data = append(b.data, b.data[start:start+s]...)
	b.flags = append(b.flags, b.flags[i])
	b.origin = append(b.origin, b.origin[i])
	return idx
}

func (b *vertexBuffer) position(i uint32) math.Vec3 {
	return b.vec3(i, UsagePosition)
}

func (b *vertexBuffer) vec3(i uint32, u Usage) math.Vec3 {
	v, _ := b.format.Read(b.vertex(i), u)
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func (b *vertexBuffer) setVec3(i uint32, u Usage, v math.Vec3) {
	b.format.Write(b.vertex(i), u, [4]float32{v.X, v.Y, v.Z, 0})
}

func (b *vertexBuffer) texCoord(i uint32) math.Vec2 {
	v, _ := b.format.Read(b.vertex(i), UsageTexCoord0)
	return math.Vec2{X: v[0], Y: v[1]}
}

// reformat repacks every vertex into f. Attributes new to f start zeroed.
func (b *vertexBuffer) reformat(f *Format) {
	if b.format.Equal(f) {
		b.format = f
		return
	}
	old := b.format
	data := make([]byte, b.Len()*f.stride)
	for i := 0; i < b.Len(); i++ {
		src := b.data[i*old.stride : (i+1)*old.stride]
		ConvertVertex(f, data[i*f.stride:(i+1)*f.stride], old, src)
	}
	b.format = f
	b.data = data
}

// compact rebuilds the buffer from the vertices listed in keep, in order.
func (b *vertexBuffer) compact(keep []uint32) {
	s := b.format.stride
	data := make([]byte, 0, len(keep)*s)
	flags := make([]VertexFlags, 0, len(keep))
	origin := make([][]uint32, 0, len(keep))
	for _, i := range keep {
		data = append(data, b.vertex(i)...)
		flags = append(flags, b.flags[i])
		origin = append(origin, b.origin[i])
	}
	b.data, b.flags, b.origin = data, flags, origin
}

// mergeOrigins adds the origins of src to those of dst.
func (b *vertexBuffer) mergeOrigins(dst, src uint32) {
	merged := make([]uint32, 0, len(b.origin[dst])+len(b.origin[src]))
	merged = append(merged, b.origin[dst]...)
	merged = append(merged, b.origin[src]...)
	b.origin[dst] = sortUnique(merged)
}

func (b *vertexBuffer) clone() *vertexBuffer {
	return &vertexBuffer{
		format: b.format,
		data:   append([]byte(nil), b.data...),
		flags:  append([]VertexFlags(nil), b.flags...),
		origin: append([][]uint32(nil), b.origin...),
	}
}

// faceNormal returns the unit normal of triangle t, each edge normalized
// first so thin triangles keep their precision.
func faceNormal(p0, p1, p2 math.Vec3) math.Vec3 {
	e1 := p1.Sub(p0).Normalize()
	e2 := p2.Sub(p0).Normalize()
	return e1.Cross(e2).Normalize()
}

// degenerate reports whether three positions are collinear or coincident.
func degenerate(p0, p1, p2 math.Vec3, eps float32) bool {
	return p1.Sub(p0).Cross(p2.Sub(p0)).LengthSq() <= eps*eps
}
