package meshprep

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/math"
)

// uvEpsilon bounds the UV determinant below which a triangle is left out of
// tangent accumulation.
const uvEpsilon float32 = 1e-12

// GenerateTangents computes per-vertex tangents and bitangents from texture
// coordinates. It needs a normal and TexCoord0; vertices whose tangent (and
// bitangent, when the format has one) came from the source are kept unless
// force is set.
func (m *Mesh) GenerateTangents(force bool) error {
	if err := m.requirePreparing("GenerateTangents"); err != nil {
		return err
	}
	m.flagDegenerates()
	m.generateTangents(force)
	return nil
}

func (m *Mesh) generateTangents(force bool) {
	f := m.format
	needT, needB := f.Has(UsageTangent), f.Has(UsageBitangent)
	if !needT && !needB {
		return
	}
	if !f.Has(UsageNormal) || !f.Has(UsageTexCoord0) {
		m.log.Debug("tangent generation skipped",
			zap.Bool("normal", f.Has(UsageNormal)),
			zap.Bool("texcoord", f.Has(UsageTexCoord0)))
		return
	}

	count := m.buf.Len()
	tan := make([]math.Vec3, count)
	bit := make([]math.Vec3, count)

	skipped := 0
	for _, tri := range m.tris {
		if tri.Degenerate() {
			continue
		}
		e, fp, g := m.buf.position(tri.V[0]), m.buf.position(tri.V[1]), m.buf.position(tri.V[2])
		et, ft, gt := m.buf.texCoord(tri.V[0]), m.buf.texCoord(tri.V[1]), m.buf.texCoord(tri.V[2])

		p := fp.Sub(e)
		q := g.Sub(e)
		du, dv := ft.Sub(et), gt.Sub(et)
		s1, t1 := du.X, du.Y
		s2, t2 := dv.X, dv.Y

		r := du.Cross(dv)
		if r > -uvEpsilon && r < uvEpsilon {
			skipped++
			continue
		}
		inv := 1 / r
		t := p.Scale(t2).Sub(q.Scale(t1)).Scale(inv)
		b := q.Scale(s1).Sub(p.Scale(s2)).Scale(inv)

		for _, v := range tri.V {
			tan[v] = tan[v].Add(t)
			bit[v] = bit[v].Add(b)
		}
	}

	tanAttr, _, _ := f.Lookup(UsageTangent)
	written := 0
	for i := 0; i < count; i++ {
		v := uint32(i)
		sourced := (!needT || m.buf.flags[i]&FlagTangent != 0) &&
			(!needB || m.buf.flags[i]&FlagBinormal != 0)
		if sourced && !force {
			continue
		}

		n := m.buf.vec3(v, UsageNormal).Normalize()
		t := tan[i].Sub(n.Scale(n.Dot(tan[i]))).Normalize()
		if t.IsZero() {
			if n.IsZero() {
				continue
			}
			t = n.Perpendicular()
		}

		b := n.Cross(t).Normalize()
		handedness := float32(1)
		if b.Dot(bit[i]) < 0 {
			b = b.Negate()
			handedness = -1
		}

		if needT {
			w := float32(0)
			if tanAttr.Components == 4 {
				w = handedness
			}
			f.Write(m.buf.vertex(v), UsageTangent, [4]float32{t.X, t.Y, t.Z, w})
		}
		if needB {
			m.buf.setVec3(v, UsageBitangent, b)
		}
		written++
	}

	m.log.Debug("tangents generated",
		zap.Int("vertices", written),
		zap.Int("uvDegenerate", skipped))
}
