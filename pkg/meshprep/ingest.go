package meshprep

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/math"
)

// Source is an externally owned vertex array in an arbitrary format.
type Source struct {
	Format *Format
	Data   []byte
	// Stride is the distance between vertices in Data; 0 means Format.Stride().
	Stride int
}

func (s Source) stride() int {
	if s.Stride > 0 {
		return s.Stride
	}
	return s.Format.Stride()
}

// Len returns the number of whole vertices in Data.
func (s Source) Len() int {
	st := s.stride()
	if st == 0 {
		return 0
	}
	return len(s.Data) / st
}

func (s Source) vertex(i uint32) []byte {
	st := s.stride()
	return s.Data[int(i)*st : int(i)*st+s.Format.Stride()]
}

func (s Source) position(i uint32) math.Vec3 {
	v, _ := s.Format.Read(s.vertex(i), UsagePosition)
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// SourceTriangle references three vertices of a Source.
type SourceTriangle struct {
	V         [3]uint32
	DataGroup uint32
}

// TrianglesFromIndices groups a flat triangle-list index array into
// SourceTriangles of one data group. A trailing partial triangle is dropped.
func TrianglesFromIndices(indices []uint32, group uint32) []SourceTriangle {
	tris := make([]SourceTriangle, 0, len(indices)/3)
	for i := 0; i+2 < len(indices); i += 3 {
		tris = append(tris, SourceTriangle{
			V:         [3]uint32{indices[i], indices[i+1], indices[i+2]},
			DataGroup: group,
		})
	}
	return tris
}

// AddTriangles appends tris to the preparation buffer. Source vertices are
// converted to the mesh format and copied once each; triangles with an edge
// shorter than the degenerate epsilon are skipped. The returned remap maps
// every source index to its preparation index, or NoIndex when unreferenced.
func (m *Mesh) AddTriangles(src Source, tris []SourceTriangle) ([]uint32, error) {
	if err := m.requirePreparing("AddTriangles"); err != nil {
		return nil, err
	}
	if err := checkPosition(src.Format); err != nil {
		return nil, errors.Wrap(err, "source format")
	}
	if src.Stride > 0 && src.Stride < src.Format.Stride() {
		return nil, errors.Wrapf(ErrInvalidFormat, "source stride %d below format stride %d", src.Stride, src.Format.Stride())
	}

	n := src.Len()
	for i, t := range tris {
		for _, v := range t.V {
			if int(v) >= n {
				return nil, errors.Wrapf(ErrInvalidIndex, "triangle %d references vertex %d of %d", i, v, n)
			}
		}
	}

	var flags VertexFlags
	if src.Format.Has(UsageNormal) {
		flags |= FlagNormal
	}
	if src.Format.Has(UsageTangent) {
		flags |= FlagTangent
	}
	if src.Format.Has(UsageBitangent) {
		flags |= FlagBinormal
	}

	remap := make([]uint32, n)
	for i := range remap {
		remap[i] = NoIndex
	}

	epsSq := m.eps * m.eps
	skipped, added := 0, 0
	for _, t := range tris {
		p0, p1, p2 := src.position(t.V[0]), src.position(t.V[1]), src.position(t.V[2])
		if p0.DistanceSq(p1) <= epsSq || p1.DistanceSq(p2) <= epsSq || p2.DistanceSq(p0) <= epsSq {
			skipped++
			continue
		}

		var tri Triangle
		for k, s := range t.V {
			if remap[s] == NoIndex {
				idx := uint32(m.buf.Len())
				m.buf.appendConverted(src.Format, src.vertex(s), flags, idx)
				m.bounds.Extend(m.buf.position(idx))
				remap[s] = idx
			}
			tri.V[k] = remap[s]
		}
		tri.DataGroup = t.DataGroup
		tri.Palette = -1
		m.tris = append(m.tris, tri)
		added++
	}

	m.log.Debug("triangles ingested",
		zap.Int("added", added),
		zap.Int("skipped", skipped),
		zap.Int("vertices", m.buf.Len()))
	return remap, nil
}
