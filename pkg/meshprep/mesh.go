package meshprep

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/math"
)

// DefaultDegenerateEpsilon is the distance (and cross-product magnitude)
// under which a triangle is treated as degenerate.
const DefaultDegenerateEpsilon float32 = 1e-6

// State is the lifecycle state of a Mesh.
type State int

const (
	StatePreparing State = iota
	StatePrepared
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Mesh.
type Option func(*Mesh)

// WithLogger routes diagnostics to l.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mesh) {
		if l != nil {
			m.log = l
		}
	}
}

// WithDegenerateEpsilon overrides DefaultDegenerateEpsilon.
func WithDegenerateEpsilon(eps float32) Option {
	return func(m *Mesh) {
		if eps >= 0 {
			m.eps = eps
		}
	}
}

// Mesh owns a mesh through preparation and holds the prepared result.
type Mesh struct {
	log   *zap.Logger
	eps   float32
	state State

	format *Format
	bounds math.Bounds

	// Preparation state, cleared by Finalize.
	buf  *vertexBuffer
	tris []Triangle
	skin *Skin

	armature *Armature

	// Prepared state.
	vertices    []byte
	vertexCount int
	indices     []uint32
	faceFlags   []TriangleFlags
	subsets     []Subset
	groupIndex  map[uint32][]int
	palettes    []BonePalette
}

// New creates an empty mesh in StatePreparing. The format must carry a
// position with at least three components.
func New(format *Format, opts ...Option) (*Mesh, error) {
	if err := checkPosition(format); err != nil {
		return nil, err
	}
	m := &Mesh{
		log:    zap.NewNop(),
		eps:    DefaultDegenerateEpsilon,
		state:  StatePreparing,
		format: format,
		buf:    newVertexBuffer(format),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func checkPosition(f *Format) error {
	if f == nil {
		return errors.Wrap(ErrInvalidFormat, "nil format")
	}
	a, _, ok := f.Lookup(UsagePosition)
	if !ok || a.Components < 3 {
		return ErrMissingPosition
	}
	return nil
}

// State returns the lifecycle state.
func (m *Mesh) State() State {
	return m.state
}

// Format returns the current vertex format. Skin binding may have extended
// it during Finalize.
func (m *Mesh) Format() *Format {
	return m.format
}

// Bounds returns the object-space bounding box of all ingested vertices.
func (m *Mesh) Bounds() math.Bounds {
	return m.bounds
}

// Armature returns the armature passed to BindSkin, if any.
func (m *Mesh) Armature() *Armature {
	return m.armature
}

// VertexCount returns the number of vertices in the current state.
func (m *Mesh) VertexCount() int {
	if m.state == StatePrepared {
		return m.vertexCount
	}
	return m.buf.Len()
}

// TriangleCount returns the number of triangles in the current state,
// degenerate ones included.
func (m *Mesh) TriangleCount() int {
	if m.state == StatePrepared {
		return len(m.indices) / 3
	}
	return len(m.tris)
}

// Triangles returns a copy of the working triangle list.
func (m *Mesh) Triangles() []Triangle {
	return append([]Triangle(nil), m.tris...)
}

// Vertex returns the bytes of vertex i in either state. The slice aliases
// internal storage and must not be retained across calls that add vertices.
func (m *Mesh) Vertex(i int) []byte {
	s := m.format.stride
	if m.state == StatePrepared {
		return m.vertices[i*s : (i+1)*s]
	}
	return m.buf.vertex(uint32(i))
}

// VertexFlags returns the provenance flags of preparation vertex i.
func (m *Mesh) VertexFlags(i int) VertexFlags {
	if m.state != StatePreparing || i < 0 || i >= m.buf.Len() {
		return 0
	}
	return m.buf.flags[i]
}

// Vertices returns the final packed vertex bytes. Read-only.
func (m *Mesh) Vertices() []byte {
	return m.vertices
}

// Indices returns the final index buffer. Read-only.
func (m *Mesh) Indices() []uint32 {
	return m.indices
}

// Subsets returns the final subset table, sorted by data group.
func (m *Mesh) Subsets() []Subset {
	return m.subsets
}

// SubsetsForGroup returns the indices into Subsets belonging to a data group,
// in subset order.
func (m *Mesh) SubsetsForGroup(group uint32) []int {
	return m.groupIndex[group]
}

// Palettes returns the bone palettes produced by skin binding.
func (m *Mesh) Palettes() []BonePalette {
	return m.palettes
}

func (m *Mesh) requirePreparing(op string) error {
	if m.state != StatePreparing {
		m.log.Warn("operation rejected", zap.String("op", op), zap.Stringer("state", m.state))
		return errors.Wrap(ErrNotPreparing, op)
	}
	return nil
}

// BeginPreparation rolls a prepared mesh back into StatePreparing. The final
// arrays are converted into a preparation buffer in format (the current
// format when nil) and triangles are rebuilt with the data groups of the
// subset table. Attributes present in the prepared data count as sourced.
// Bone palettes are discarded; skin data must be bound again.
func (m *Mesh) BeginPreparation(format *Format) error {
	if m.state != StatePrepared {
		m.log.Warn("operation rejected", zap.String("op", "BeginPreparation"), zap.Stringer("state", m.state))
		return errors.Wrap(ErrNotPrepared, "BeginPreparation")
	}
	if format == nil {
		format = m.format
	}
	if err := checkPosition(format); err != nil {
		return err
	}

	var flags VertexFlags
	if m.format.Has(UsageNormal) {
		flags |= FlagNormal
	}
	if m.format.Has(UsageTangent) {
		flags |= FlagTangent
	}
	if m.format.Has(UsageBitangent) {
		flags |= FlagBinormal
	}

	buf := newVertexBuffer(format)
	stride := m.format.stride
	var bounds math.Bounds
	for i := 0; i < m.vertexCount; i++ {
		v := m.vertices[i*stride : (i+1)*stride]
		idx := buf.appendConverted(m.format, v, flags, uint32(i))
		bounds.Extend(buf.position(idx))
	}

	tris := make([]Triangle, 0, len(m.indices)/3)
	for _, s := range m.subsets {
		for f := s.FaceStart; f < s.FaceStart+s.FaceCount; f++ {
			tris = append(tris, Triangle{
				V:         [3]uint32{m.indices[3*f], m.indices[3*f+1], m.indices[3*f+2]},
				DataGroup: s.DataGroup,
				Palette:   -1,
			})
		}
	}

	m.format = format
	m.buf = buf
	m.tris = tris
	m.bounds = bounds
	m.skin = nil
	m.vertices, m.vertexCount, m.indices, m.faceFlags = nil, 0, nil, nil
	m.subsets, m.groupIndex, m.palettes = nil, nil, nil
	m.state = StatePreparing

	m.log.Debug("rolled back to preparing",
		zap.Int("vertices", buf.Len()),
		zap.Int("triangles", len(tris)),
		zap.Stringer("format", format))
	return nil
}
