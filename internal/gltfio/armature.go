package gltfio

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

// armatureBuilder assigns global bone indices to skin joints. A node used by
// several skins maps to one bone.
type armatureBuilder struct {
	doc     *gltf.Document
	parents []int

	bone    map[int]uint32
	nodes   []int
	inverse []mgl32.Mat4
	skins   map[int][]uint32
}

func newArmatureBuilder(doc *gltf.Document, parents []int) *armatureBuilder {
	return &armatureBuilder{
		doc:     doc,
		parents: parents,
		bone:    make(map[int]uint32),
		skins:   make(map[int][]uint32),
	}
}

// skin returns the global bone of every joint of skin si.
func (a *armatureBuilder) skin(si int) ([]uint32, error) {
	if bones, ok := a.skins[si]; ok {
		return bones, nil
	}
	s := a.doc.Skins[si]

	var ibm [][4][4]float32
	if s.InverseBindMatrices != nil {
		acc, err := accessor(a.doc, *s.InverseBindMatrices)
		if err != nil {
			return nil, errors.Wrapf(err, "skin %d", si)
		}
		raw, err := modeler.ReadAccessor(a.doc, acc, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "skin %d: read inverse bind matrices", si)
		}
		m, ok := raw.([][4][4]float32)
		if !ok {
			return nil, errors.Errorf("skin %d: inverse bind matrices decoded as %T", si, raw)
		}
		if len(m) < len(s.Joints) {
			return nil, errors.Errorf("skin %d: %d inverse bind matrices for %d joints", si, len(m), len(s.Joints))
		}
		ibm = m
	}

	bones := make([]uint32, len(s.Joints))
	for j, node := range s.Joints {
		if int(node) >= len(a.doc.Nodes) {
			return nil, errors.Errorf("skin %d: joint node %d out of range", si, node)
		}
		b, ok := a.bone[int(node)]
		if !ok {
			b = uint32(len(a.nodes))
			a.bone[int(node)] = b
			a.nodes = append(a.nodes, int(node))
			inv := mgl32.Ident4()
			if ibm != nil {
				inv = columnMajor(ibm[j])
			}
			a.inverse = append(a.inverse, inv)
		}
		bones[j] = b
	}
	a.skins[si] = bones
	return bones, nil
}

// build links every bone to its nearest joint ancestor. Non-joint nodes in
// between are folded into the bone's local transform.
func (a *armatureBuilder) build() (*meshprep.Armature, []Bone) {
	if len(a.nodes) == 0 {
		return nil, nil
	}
	arm := &meshprep.Armature{Nodes: make([]meshprep.ArmatureNode, len(a.nodes))}
	bones := make([]Bone, len(a.nodes))
	for b, node := range a.nodes {
		parent := -1
		local := localMatrix(a.doc.Nodes[node])
		for p, steps := a.parents[node], 0; p >= 0 && steps < len(a.parents); p, steps = a.parents[p], steps+1 {
			if pb, ok := a.bone[p]; ok {
				parent = int(pb)
				break
			}
			local = localMatrix(a.doc.Nodes[p]).Mul4(local)
		}
		name := a.doc.Nodes[node].Name
		if name == "" {
			name = fmt.Sprintf("joint%d", node)
		}
		arm.Nodes[b] = meshprep.ArmatureNode{Name: name, Parent: parent}
		bones[b] = Bone{Local: local, InverseBind: a.inverse[b]}
	}
	return arm, bones
}

func columnMajor(m [4][4]float32) mgl32.Mat4 {
	var out mgl32.Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c*4+r] = m[c][r]
		}
	}
	return out
}

func columns(m mgl32.Mat4) [4][4]float32 {
	var out [4][4]float32
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = m[c*4+r]
		}
	}
	return out
}
