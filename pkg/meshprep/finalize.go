package meshprep

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FinalizeOptions selects the optional pipeline steps.
type FinalizeOptions struct {
	// ForceNormals regenerates normals the source supplied.
	ForceNormals bool
	// ForceTangents regenerates tangents and bitangents the source supplied.
	ForceTangents bool

	Weld          bool
	WeldTolerance float32

	OptimizeCache bool
	CacheSize     int

	// MaxBlendTransforms is the bone palette capacity reported by the
	// render backend. Only used when a skin is bound.
	MaxBlendTransforms int
}

// DefaultFinalizeOptions welds exact duplicates and optimizes for a
// DefaultCacheSize cache.
func DefaultFinalizeOptions() FinalizeOptions {
	return FinalizeOptions{
		Weld:               true,
		WeldTolerance:      0,
		OptimizeCache:      true,
		CacheSize:          DefaultCacheSize,
		MaxBlendTransforms: DefaultMaxBlendTransforms,
	}
}

type prepSnapshot struct {
	format *Format
	buf    *vertexBuffer
	tris   []Triangle
}

func (m *Mesh) snapshot() prepSnapshot {
	return prepSnapshot{
		format: m.format,
		buf:    m.buf.clone(),
		tris:   append([]Triangle(nil), m.tris...),
	}
}

func (m *Mesh) restore(s prepSnapshot) {
	m.format = s.format
	m.buf = s.buf
	m.tris = s.tris
	m.palettes = nil
}

// Finalize runs the preparation pipeline and moves the mesh to
// StatePrepared. On failure the preparation buffer is restored and the mesh
// stays in StatePreparing.
func (m *Mesh) Finalize(opts FinalizeOptions) error {
	if err := m.requirePreparing("Finalize"); err != nil {
		return err
	}
	snap := m.snapshot()
	if err := m.finalize(opts); err != nil {
		m.restore(snap)
		m.log.Warn("finalize failed", zap.Error(err))
		return errors.Wrap(err, "finalize")
	}
	return nil
}

func (m *Mesh) finalize(opts FinalizeOptions) error {
	degenerates := m.flagDegenerates()

	m.generateNormals(opts.ForceNormals)
	if opts.Weld {
		m.weld(opts.WeldTolerance)
	}
	m.generateTangents(opts.ForceTangents)

	if m.skin != nil {
		if err := m.bindSkin(opts.MaxBlendTransforms); err != nil {
			return err
		}
	}

	for i, t := range m.tris {
		for _, v := range t.V {
			if int(v) >= m.buf.Len() {
				return errors.Wrapf(ErrInvalidIndex, "triangle %d references vertex %d of %d", i, v, m.buf.Len())
			}
		}
	}

	vertices := append([]byte(nil), m.buf.data...)
	sorted := sortSubsets(m.tris)

	if opts.OptimizeCache {
		size := opts.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		for _, s := range sorted.subsets {
			idx := sorted.indices[3*s.FaceStart : 3*(s.FaceStart+s.FaceCount)]
			order := OptimizeVertexCache(idx, s.VertexStart, s.VertexCount, size)
			flags := sorted.flags[s.FaceStart : s.FaceStart+s.FaceCount]
			reordered := make([]TriangleFlags, len(flags))
			for i, f := range order {
				reordered[i] = flags[f]
			}
			copy(flags, reordered)
		}
	}

	m.vertices = vertices
	m.vertexCount = m.buf.Len()
	m.indices = sorted.indices
	m.faceFlags = sorted.flags
	m.subsets = sorted.subsets
	m.groupIndex = sorted.groups

	m.buf = newVertexBuffer(m.format)
	m.tris = nil
	m.skin = nil
	m.state = StatePrepared

	m.log.Info("mesh prepared",
		zap.Int("vertices", m.vertexCount),
		zap.Int("triangles", len(m.indices)/3),
		zap.Int("degenerate", degenerates),
		zap.Int("subsets", len(m.subsets)),
		zap.Int("palettes", len(m.palettes)),
		zap.Stringer("format", m.format))
	return nil
}

// flagDegenerates marks triangles whose edge cross product vanishes.
func (m *Mesh) flagDegenerates() int {
	n := 0
	for i := range m.tris {
		t := &m.tris[i]
		p0, p1, p2 := m.buf.position(t.V[0]), m.buf.position(t.V[1]), m.buf.position(t.V[2])
		if degenerate(p0, p1, p2, m.eps) {
			t.Flags |= TriangleDegenerate
			n++
			continue
		}
		t.Flags &^= TriangleDegenerate
	}
	return n
}
