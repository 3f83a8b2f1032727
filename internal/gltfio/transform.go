package gltfio

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// localMatrix returns the node transform, preferring an explicit matrix over
// TRS properties.
func localMatrix(n *gltf.Node) mgl32.Mat4 {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		return mgl32.Mat4(m)
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	rot := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize()
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// nodeParents maps every node to its parent, -1 for roots.
func nodeParents(doc *gltf.Document) []int {
	parents := make([]int, len(doc.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(parents) {
				parents[c] = i
			}
		}
	}
	return parents
}

// worldMatrices resolves the world transform of every node.
func worldMatrices(doc *gltf.Document, parents []int) []mgl32.Mat4 {
	world := make([]mgl32.Mat4, len(doc.Nodes))
	done := make([]bool, len(doc.Nodes))
	var resolve func(i int, depth int) mgl32.Mat4
	resolve = func(i int, depth int) mgl32.Mat4 {
		if done[i] {
			return world[i]
		}
		m := localMatrix(doc.Nodes[i])
		// A cyclic hierarchy is invalid glTF; stop climbing instead of recursing forever.
		if p := parents[i]; p >= 0 && depth < len(doc.Nodes) {
			m = resolve(p, depth+1).Mul4(m)
		}
		world[i], done[i] = m, true
		return m
	}
	for i := range doc.Nodes {
		resolve(i, 0)
	}
	return world
}

// baker applies a world matrix to vertex attributes.
type baker struct {
	m      mgl32.Mat4
	normal mgl32.Mat3
	linear mgl32.Mat3
	// mirrored is set when the transform flips handedness.
	mirrored bool
}

func newBaker(m mgl32.Mat4) *baker {
	linear := m.Mat3()
	normal := linear
	if linear.Det() != 0 {
		normal = linear.Inv().Transpose()
	}
	return &baker{m: m, normal: normal, linear: linear, mirrored: linear.Det() < 0}
}

func (b *baker) position(p [3]float32) [3]float32 {
	return mgl32.TransformCoordinate(mgl32.Vec3(p), b.m)
}

func (b *baker) direction(v [3]float32) [3]float32 {
	return normalize(b.normal.Mul3x1(mgl32.Vec3(v)))
}

func (b *baker) tangent(t [4]float32) [4]float32 {
	d := normalize(b.linear.Mul3x1(mgl32.Vec3{t[0], t[1], t[2]}))
	w := t[3]
	if b.mirrored {
		w = -w
	}
	return [4]float32{d[0], d[1], d[2], w}
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if l := v.Len(); l > 0 {
		return v.Mul(1 / l)
	}
	return v
}

func isIdentity(m mgl32.Mat4) bool {
	return m.ApproxEqual(mgl32.Ident4())
}
