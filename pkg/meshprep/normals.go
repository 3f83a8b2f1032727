package meshprep

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/math"
)

// NormalSplitThreshold is the largest per-axis difference between two
// normals computed for the same vertex before the vertex is split.
const NormalSplitThreshold float32 = 1e-3

// GenerateNormals fills normals that were not supplied by the source (all of
// them when force is set) by averaging the face normals around each corner.
// A vertex whose corners disagree is split. The returned remap lists, for
// every vertex, the vertex it was copied from; it is nil when nothing split.
func (m *Mesh) GenerateNormals(force bool) ([]uint32, error) {
	if err := m.requirePreparing("GenerateNormals"); err != nil {
		return nil, err
	}
	m.flagDegenerates()
	return m.generateNormals(force), nil
}

type normalSplit struct {
	from   uint32
	normal math.Vec3
}

func (m *Mesh) generateNormals(force bool) []uint32 {
	if !m.format.Has(UsageNormal) {
		return nil
	}

	adj, keys := adjacencyWithKeys(prepTriangles{buf: m.buf, tris: m.tris})

	faces := make([]math.Vec3, len(m.tris))
	for t, tri := range m.tris {
		if tri.Degenerate() {
			continue
		}
		faces[t] = faceNormal(m.buf.position(tri.V[0]), m.buf.position(tri.V[1]), m.buf.position(tri.V[2]))
	}

	base := uint32(m.buf.Len())
	stored := make([]math.Vec3, base)
	written := make([]bool, base)
	var pending []normalSplit
	splits := make(map[uint32][]uint32)

	generated := 0
	for t := range m.tris {
		if m.tris[t].Degenerate() {
			continue
		}
		for k := 0; k < 3; k++ {
			v := m.tris[t].V[k]
			if !force && m.buf.flags[v]&FlagNormal != 0 {
				continue
			}
			n := cornerNormal(adj, keys, faces, t, k)
			generated++

			if !written[v] || stored[v].IsZero() || stored[v].MaxAbsDiff(n) <= NormalSplitThreshold {
				stored[v] = n
				written[v] = true
				continue
			}

			// Reuse a split already staged for this vertex with the same normal.
			target := NoIndex
			for _, p := range splits[v] {
				if pending[p-base].normal.MaxAbsDiff(n) <= NormalSplitThreshold {
					target = p
					break
				}
			}
			if target == NoIndex {
				target = base + uint32(len(pending))
				pending = append(pending, normalSplit{from: v, normal: n})
				splits[v] = append(splits[v], target)
			}
			m.tris[t].V[k] = target
		}
	}

	for v := uint32(0); v < base; v++ {
		if written[v] {
			m.buf.setVec3(v, UsageNormal, stored[v])
		}
	}
	for _, p := range pending {
		idx := m.buf.duplicate(p.from)
		m.buf.setVec3(idx, UsageNormal, p.normal)
	}

	m.log.Debug("normals generated",
		zap.Int("corners", generated),
		zap.Int("splits", len(pending)))

	if len(pending) == 0 {
		return nil
	}
	remap := make([]uint32, int(base)+len(pending))
	for i := uint32(0); i < base; i++ {
		remap[i] = i
	}
	for i, p := range pending {
		remap[int(base)+i] = p.from
	}
	return remap
}

// cornerNormal sums the face normals of the fan around corner k of triangle
// t. It first walks backward across incoming edges to the first triangle of
// the fan, then forward across outgoing edges. Only triangles incident to the
// corner position are visited.
func cornerNormal(adj []uint32, keys [][3]posKey, faces []math.Vec3, t, k int) math.Vec3 {
	key := keys[t][k]
	limit := len(faces)

	start, sk := t, k
	cur, ck := t, k
	for step := 0; step < limit; step++ {
		nb := adj[3*cur+(ck+2)%3]
		if nb == NoNeighbor || int(nb) == t {
			break
		}
		nk := cornerOf(keys[nb], key)
		if nk < 0 {
			break
		}
		cur, ck = int(nb), nk
		start, sk = cur, ck
	}

	var sum math.Vec3
	fan := make([]int, 0, 8)
	cur, ck = start, sk
	for step := 0; step < limit; step++ {
		fan = append(fan, cur)
		sum = sum.Add(faces[cur])
		nb := adj[3*cur+ck]
		if nb == NoNeighbor || int(nb) == start || visited(fan, int(nb)) {
			break
		}
		nk := cornerOf(keys[nb], key)
		if nk < 0 {
			break
		}
		cur, ck = int(nb), nk
	}
	return sum.Normalize()
}

func cornerOf(corners [3]posKey, key posKey) int {
	for j, c := range corners {
		if c == key {
			return j
		}
	}
	return -1
}

func visited(fan []int, t int) bool {
	for _, f := range fan {
		if f == t {
			return true
		}
	}
	return false
}
