package meshprep

import (
	gomath "math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxInfluences is the number of bone influences packed per vertex.
const MaxInfluences = 4

// DefaultMaxBlendTransforms is the palette capacity used when the render
// backend does not report one.
const DefaultMaxBlendTransforms = 32

// Influence binds a vertex to a bone with a weight.
type Influence struct {
	Vertex uint32
	Weight float32
}

// Skin is bind data: Bones[b] lists every vertex bone b moves. Vertex indices
// refer to preparation vertices as returned by AddTriangles.
type Skin struct {
	Bones [][]Influence
}

// Remap re-keys the skin through a source-to-preparation remap such as the
// one AddTriangles returns. Influences on unmapped vertices are dropped.
func (s *Skin) Remap(remap []uint32) *Skin {
	out := &Skin{Bones: make([][]Influence, len(s.Bones))}
	for b, infl := range s.Bones {
		for _, in := range infl {
			if int(in.Vertex) >= len(remap) || remap[in.Vertex] == NoIndex {
				continue
			}
			out.Bones[b] = append(out.Bones[b], Influence{Vertex: remap[in.Vertex], Weight: in.Weight})
		}
	}
	return out
}

// ArmatureNode is one named node of a skeleton. Parent is -1 for roots.
type ArmatureNode struct {
	Name   string
	Parent int
}

// Armature is a bone hierarchy carried alongside the mesh. The pipeline does
// not interpret it.
type Armature struct {
	Nodes []ArmatureNode
}

// VertexInfluence is one packed (bone, weight) pair of a vertex.
type VertexInfluence struct {
	Bone   uint32
	Weight float32
}

// BindSkin attaches bind data that Finalize turns into bone palettes.
// Passing a nil skin removes a previous binding.
func (m *Mesh) BindSkin(skin *Skin, armature *Armature) error {
	if err := m.requirePreparing("BindSkin"); err != nil {
		return err
	}
	if skin != nil {
		n := m.buf.Len()
		for b, infl := range skin.Bones {
			for _, in := range infl {
				if int(in.Vertex) >= n {
					return errors.Wrapf(ErrInvalidSkin, "bone %d references vertex %d of %d", b, in.Vertex, n)
				}
				w := float64(in.Weight)
				if w < 0 || gomath.IsNaN(w) || gomath.IsInf(w, 0) {
					return errors.Wrapf(ErrInvalidSkin, "bone %d has weight %v on vertex %d", b, in.Weight, in.Vertex)
				}
			}
		}
	}
	m.skin = skin
	m.armature = armature
	return nil
}

// clampInfluences orders influences by weight, heaviest first, and keeps at
// most MaxInfluences of them. Dropped weight is not redistributed.
func clampInfluences(in []VertexInfluence) []VertexInfluence {
	merged := make([]VertexInfluence, 0, len(in))
	for _, v := range in {
		if v.Weight <= 0 {
			continue
		}
		found := false
		for j := range merged {
			if merged[j].Bone == v.Bone {
				merged[j].Weight += v.Weight
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, v)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Weight != merged[j].Weight {
			return merged[i].Weight > merged[j].Weight
		}
		return merged[i].Bone < merged[j].Bone
	})
	if len(merged) > MaxInfluences {
		merged = merged[:MaxInfluences]
	}
	return merged
}

// vertexInfluences builds the clamped influence list of every preparation
// vertex, following the origin table through splits and welds. A welded
// vertex averages the influences of all its origins.
func (m *Mesh) vertexInfluences() [][]VertexInfluence {
	byOrigin := make(map[uint32][]VertexInfluence)
	for b, infl := range m.skin.Bones {
		for _, in := range infl {
			byOrigin[in.Vertex] = append(byOrigin[in.Vertex], VertexInfluence{Bone: uint32(b), Weight: in.Weight})
		}
	}
	clamped := make(map[uint32][]VertexInfluence, len(byOrigin))
	for o, infl := range byOrigin {
		clamped[o] = clampInfluences(infl)
	}
	out := make([][]VertexInfluence, m.buf.Len())
	for i := range out {
		origins := m.buf.origin[i]
		if len(origins) == 1 {
			out[i] = clamped[origins[0]]
			continue
		}
		var all []VertexInfluence
		scale := 1 / float32(len(origins))
		for _, o := range origins {
			for _, in := range byOrigin[o] {
				all = append(all, VertexInfluence{Bone: in.Bone, Weight: in.Weight * scale})
			}
		}
		out[i] = clampInfluences(all)
	}
	return out
}

// boneBucket groups the triangles of one data group that reference exactly
// the same bone set.
type boneBucket struct {
	group uint32
	bones []uint32
	tris  []uint32
}

type bucketKey struct {
	group uint32
	bones string
}

func boneSetKey(bones []uint32) string {
	b := make([]byte, 0, 4*len(bones))
	for _, v := range bones {
		b = append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return string(b)
}

func (m *Mesh) boneBuckets(infl [][]VertexInfluence) []*boneBucket {
	index := make(map[bucketKey]*boneBucket)
	var buckets []*boneBucket
	for t, tri := range m.tris {
		var bones []uint32
		for _, v := range tri.V {
			for _, in := range infl[v] {
				bones = append(bones, in.Bone)
			}
		}
		bones = sortUnique(bones)
		k := bucketKey{group: tri.DataGroup, bones: boneSetKey(bones)}
		bk, ok := index[k]
		if !ok {
			bk = &boneBucket{group: tri.DataGroup, bones: bones}
			index[k] = bk
			buckets = append(buckets, bk)
		}
		bk.tris = append(bk.tris, uint32(t))
	}
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.group != b.group {
			return a.group < b.group
		}
		if len(a.bones) != len(b.bones) {
			return len(a.bones) > len(b.bones)
		}
		for x := range a.bones {
			if a.bones[x] != b.bones[x] {
				return a.bones[x] < b.bones[x]
			}
		}
		return false
	})
	return buckets
}

func sortUnique(v []uint32) []uint32 {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != v[i-1] {
			out = append(out, x)
		}
	}
	return out
}

// paletteCandidate is the best palette found so far for one bucket.
type paletteCandidate struct {
	palette int
	common  int
}

var noCandidate = paletteCandidate{palette: -1, common: -1}

// paletteAllocator packs the buckets of one data group into palettes with a
// greedy best-fit policy: each round merges the bucket/palette pair sharing
// the most bones among pairs that fit, or opens a palette for the largest
// remaining bucket. Candidates are cached per bucket and only re-evaluated
// against the palette that changed in the previous round.
type paletteAllocator struct {
	capacity int
	palettes []*BonePalette
}

func (a *paletteAllocator) evaluate(b *boneBucket, pi int) paletteCandidate {
	p := a.palettes[pi]
	common := p.overlap(b.bones)
	if p.Len()+len(b.bones)-common > a.capacity {
		return noCandidate
	}
	return paletteCandidate{palette: pi, common: common}
}

func better(c, than paletteCandidate) bool {
	if c.palette < 0 {
		return false
	}
	if than.palette < 0 || c.common > than.common {
		return true
	}
	return c.common == than.common && c.palette < than.palette
}

func (a *paletteAllocator) allocate(buckets []*boneBucket) {
	first := len(a.palettes)
	alive := make([]bool, len(buckets))
	cache := make([]paletteCandidate, len(buckets))
	for i := range buckets {
		alive[i] = true
		cache[i] = noCandidate
	}

	changed := -1
	for left := len(buckets); left > 0; left-- {
		if changed >= 0 {
			for i, b := range buckets {
				if !alive[i] {
					continue
				}
				if cache[i].palette == changed {
					cache[i] = noCandidate
					for pi := first; pi < len(a.palettes); pi++ {
						if c := a.evaluate(b, pi); better(c, cache[i]) {
							cache[i] = c
						}
					}
					continue
				}
				if c := a.evaluate(b, changed); better(c, cache[i]) {
					cache[i] = c
				}
			}
		}

		pick := -1
		for i := range buckets {
			if alive[i] && cache[i].palette >= 0 && (pick < 0 || cache[i].common > cache[pick].common) {
				pick = i
			}
		}

		if pick >= 0 {
			changed = cache[pick].palette
		} else {
			// Buckets are sorted largest first, so the first alive one is
			// the largest remaining.
			for i := range buckets {
				if alive[i] {
					pick = i
					break
				}
			}
			a.palettes = append(a.palettes, newBonePalette(buckets[pick].group))
			changed = len(a.palettes) - 1
		}

		p := a.palettes[changed]
		p.add(buckets[pick].bones)
		p.triangles = append(p.triangles, buckets[pick].tris...)
		alive[pick] = false
	}
}

type paletteSplit struct {
	from    uint32
	palette int
}

// bindSkin allocates bone palettes, splits vertices shared between palettes,
// extends the format with blend attributes when needed and packs the
// palette-local influences.
func (m *Mesh) bindSkin(capacity int) error {
	if capacity <= 0 {
		capacity = DefaultMaxBlendTransforms
	}
	infl := m.vertexInfluences()
	buckets := m.boneBuckets(infl)
	for _, b := range buckets {
		if len(b.bones) > capacity {
			return errors.Wrapf(ErrPaletteCapacity, "data group %d needs %d bones in one triangle, capacity %d",
				b.group, len(b.bones), capacity)
		}
	}

	alloc := &paletteAllocator{capacity: capacity}
	for start := 0; start < len(buckets); {
		end := start
		for end < len(buckets) && buckets[end].group == buckets[start].group {
			end++
		}
		alloc.allocate(buckets[start:end])
		start = end
	}

	n := uint32(m.buf.Len())
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}
	dups := make(map[paletteSplit]uint32)
	var pending []paletteSplit
	for pi, p := range alloc.palettes {
		for _, t := range p.triangles {
			tri := &m.tris[t]
			tri.Palette = int32(pi)
			for k, v := range tri.V {
				switch owner[v] {
				case -1:
					owner[v] = pi
				case pi:
				default:
					key := paletteSplit{from: v, palette: pi}
					d, ok := dups[key]
					if !ok {
						d = n + uint32(len(pending))
						pending = append(pending, key)
						dups[key] = d
					}
					tri.V[k] = d
				}
			}
		}
		p.triangles = nil
	}
	for _, s := range pending {
		m.buf.duplicate(s.from)
		infl = append(infl, infl[s.from])
		owner = append(owner, s.palette)
	}

	maxInfl := make([]int, len(alloc.palettes))
	for v, pi := range owner {
		if pi >= 0 && len(infl[v]) > maxInfl[pi] {
			maxInfl[pi] = len(infl[v])
		}
	}

	if err := m.ensureBlendAttributes(capacity); err != nil {
		return err
	}

	for v := range owner {
		var weights, indices [4]float32
		if pi := owner[v]; pi >= 0 {
			p := alloc.palettes[pi]
			for j, in := range infl[v] {
				local, _ := p.LocalIndex(in.Bone)
				indices[j] = float32(local)
				weights[j] = in.Weight
			}
		}
		vert := m.buf.vertex(uint32(v))
		m.format.Write(vert, UsageBlendWeight, weights)
		m.format.Write(vert, UsageBlendIndices, indices)
	}

	m.palettes = make([]BonePalette, len(alloc.palettes))
	for i, p := range alloc.palettes {
		p.MaxBlendIndex = 0
		if maxInfl[i] > 0 {
			p.MaxBlendIndex = maxInfl[i] - 1
		}
		m.palettes[i] = *p
	}

	m.log.Debug("skin bound",
		zap.Int("buckets", len(buckets)),
		zap.Int("palettes", len(m.palettes)),
		zap.Int("splits", len(pending)),
		zap.Int("capacity", capacity))
	return nil
}

// ensureBlendAttributes appends BlendWeight and BlendIndices to the format
// when missing and repacks the buffer.
func (m *Mesh) ensureBlendAttributes(capacity int) error {
	if m.format.Has(UsageBlendWeight) && m.format.Has(UsageBlendIndices) {
		return nil
	}
	indexType := Uint8
	if capacity > 256 {
		indexType = Uint16
	}
	var attrs []Attribute
	if !m.format.Has(UsageBlendWeight) {
		attrs = append(attrs, Attribute{Usage: UsageBlendWeight, Components: MaxInfluences, Type: Uint8, Normalized: true})
	}
	if !m.format.Has(UsageBlendIndices) {
		attrs = append(attrs, Attribute{Usage: UsageBlendIndices, Components: MaxInfluences, Type: indexType})
	}
	f, err := m.format.Extend(attrs...)
	if err != nil {
		return err
	}
	m.buf.reformat(f)
	m.format = f
	m.log.Debug("format extended for skinning", zap.Stringer("format", f))
	return nil
}
