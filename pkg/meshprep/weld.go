package meshprep

import (
	"bytes"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/math"
)

// Weld merges vertices whose positions lie within tolerance of each other.
// Only positions are compared; a tolerance of 0 merges bit-identical
// vertices only. The first vertex of a cluster survives and inherits the skin
// influences of every vertex merged into it. The returned remap maps every
// old index to its new index; it is nil when nothing merged and the mesh is
// left unchanged.
func (m *Mesh) Weld(tolerance float32) ([]uint32, error) {
	if err := m.requirePreparing("Weld"); err != nil {
		return nil, err
	}
	return m.weld(tolerance), nil
}

type cellKey [3]int64

// weldIndex is a spatial hash over cluster representatives. Each vertex is
// compared against representatives only, so membership does not depend on
// chains of near neighbors.
type weldIndex struct {
	tol   float32
	tolSq float32
	cells map[cellKey][]uint32
	exact map[posKey][]uint32
}

func newWeldIndex(tol float32) *weldIndex {
	w := &weldIndex{tol: tol, tolSq: tol * tol}
	if tol > 0 {
		w.cells = make(map[cellKey][]uint32)
	} else {
		w.exact = make(map[posKey][]uint32)
	}
	return w
}

func (w *weldIndex) cell(p math.Vec3) cellKey {
	return cellKey{
		int64(gomath.Floor(float64(p.X / w.tol))),
		int64(gomath.Floor(float64(p.Y / w.tol))),
		int64(gomath.Floor(float64(p.Z / w.tol))),
	}
}

func (w *weldIndex) add(i uint32, p math.Vec3) {
	if w.exact != nil {
		k := keyOf(p)
		w.exact[k] = append(w.exact[k], i)
		return
	}
	c := w.cell(p)
	w.cells[c] = append(w.cells[c], i)
}

// candidates calls fn for each representative that may lie within tolerance.
func (w *weldIndex) candidates(p math.Vec3, fn func(uint32)) {
	if w.exact != nil {
		for _, r := range w.exact[keyOf(p)] {
			fn(r)
		}
		return
	}
	c := w.cell(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, r := range w.cells[cellKey{c[0] + dx, c[1] + dy, c[2] + dz}] {
					fn(r)
				}
			}
		}
	}
}

func (m *Mesh) weld(tolerance float32) []uint32 {
	if tolerance < 0 || gomath.IsNaN(float64(tolerance)) {
		tolerance = 0
	}
	n := m.buf.Len()
	if n == 0 {
		return nil
	}

	idx := newWeldIndex(tolerance)
	collapse := make([]uint32, n)
	var keep []uint32
	for i := 0; i < n; i++ {
		v := uint32(i)
		p := m.buf.position(v)
		match := NoIndex
		idx.candidates(p, func(r uint32) {
			if r < match && m.weldable(r, v, p, idx.tolSq) {
				match = r
			}
		})
		if match == NoIndex {
			collapse[i] = v
			keep = append(keep, v)
			idx.add(v, p)
			continue
		}
		collapse[i] = match
	}

	if len(keep) == n {
		return nil
	}

	for i, r := range collapse {
		if r != uint32(i) {
			m.buf.mergeOrigins(r, uint32(i))
		}
	}

	newIndex := make([]uint32, n)
	for j, r := range keep {
		newIndex[r] = uint32(j)
	}
	remap := make([]uint32, n)
	for i := range remap {
		remap[i] = newIndex[collapse[i]]
	}
	for t := range m.tris {
		for k := range m.tris[t].V {
			m.tris[t].V[k] = remap[m.tris[t].V[k]]
		}
	}
	m.buf.compact(keep)

	m.log.Debug("vertices welded",
		zap.Float32("tolerance", tolerance),
		zap.Int("before", n),
		zap.Int("after", len(keep)))
	return remap
}

// weldable reports whether vertex v may collapse into representative r.
// With a zero tolerance the whole vertex must match byte for byte.
func (m *Mesh) weldable(r, v uint32, p math.Vec3, tolSq float32) bool {
	if tolSq > 0 {
		return m.buf.position(r).DistanceSq(p) <= tolSq
	}
	return bytes.Equal(m.buf.vertex(r), m.buf.vertex(v))
}
