package gltfio

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

// Save encodes scene and writes it to path as .glb or .gltf. Text output
// embeds buffers as data URIs.
func Save(path string, scene *Scene, opts SaveOptions) error {
	doc, err := Encode(scene, opts)
	if err != nil {
		return err
	}
	if opts.Binary {
		return errors.Wrapf(gltf.SaveBinary(doc, path), "save %s", path)
	}
	for _, b := range doc.Buffers {
		if b.URI == "" {
			b.EmbeddedResource()
		}
	}
	return errors.Wrapf(gltf.Save(doc, path), "save %s", path)
}

// Encode builds a document from prepared meshes. Each subset becomes one
// primitive; its extras carry the data group and, for skinned meshes, the
// palette bones. Joint indices are written as global armature indices.
func Encode(scene *Scene, opts SaveOptions) (*gltf.Document, error) {
	log := opts.logger()
	doc := gltf.NewDocument()
	doc.Asset.Generator = opts.Generator
	doc.Materials = scene.Materials

	var skin *uint32
	for _, m := range scene.Meshes {
		if m.Skinned && len(scene.Bones) > 0 {
			skin = gltf.Index(writeArmature(doc, scene))
			break
		}
	}

	for _, m := range scene.Meshes {
		if m.Mesh.State() != meshprep.StatePrepared {
			return nil, errors.Wrapf(meshprep.ErrNotPrepared, "mesh %q", m.Name)
		}
		gm := encodeMesh(doc, m)
		doc.Meshes = append(doc.Meshes, gm)

		node := &gltf.Node{Name: m.Name, Mesh: gltf.Index(uint32(len(doc.Meshes) - 1))}
		switch {
		case m.Skinned && skin != nil:
			node.Skin = skin
		case !isIdentity(m.Transform):
			node.Matrix = [16]float32(m.Transform)
		}
		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))

		log.Debug("mesh encoded",
			zap.String("name", m.Name),
			zap.Int("primitives", len(gm.Primitives)),
			zap.Int("vertices", m.Mesh.VertexCount()))
	}
	return doc, nil
}

// writeArmature adds one node per bone and a skin listing them in bone
// order.
func writeArmature(doc *gltf.Document, scene *Scene) uint32 {
	base := uint32(len(doc.Nodes))
	joints := make([]uint32, len(scene.Bones))
	inverse := make([][4][4]float32, len(scene.Bones))
	for b, bone := range scene.Bones {
		joints[b] = base + uint32(b)
		inverse[b] = columns(bone.InverseBind)
		node := &gltf.Node{}
		if scene.Armature != nil && b < len(scene.Armature.Nodes) {
			node.Name = scene.Armature.Nodes[b].Name
		}
		if !isIdentity(bone.Local) {
			node.Matrix = [16]float32(bone.Local)
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for b := range scene.Bones {
		parent := -1
		if scene.Armature != nil && b < len(scene.Armature.Nodes) {
			parent = scene.Armature.Nodes[b].Parent
		}
		if parent < 0 {
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, base+uint32(b))
			continue
		}
		p := doc.Nodes[base+uint32(parent)]
		p.Children = append(p.Children, base+uint32(b))
	}
	doc.Skins = append(doc.Skins, &gltf.Skin{
		Joints:              joints,
		InverseBindMatrices: gltf.Index(writeMatrices(doc, inverse)),
	})
	return uint32(len(doc.Skins) - 1)
}

// writeMatrices stores mat4 columns through the vec4 writer and retypes the
// accessor.
func writeMatrices(doc *gltf.Document, mats [][4][4]float32) uint32 {
	a := make([][4]float32, len(mats)*4)
	for i, m := range mats {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(doc, a)
	doc.Accessors[acc].Type = gltf.AccessorMat4
	doc.Accessors[acc].Count /= 4
	if bv := doc.Accessors[acc].BufferView; bv != nil {
		doc.BufferViews[*bv].ByteStride *= 4
	}
	return acc
}

func encodeMesh(doc *gltf.Document, m *Mesh) *gltf.Mesh {
	pm := m.Mesh
	f := pm.Format()
	n := pm.VertexCount()

	attrs := map[string]uint32{}
	positions := make([][3]float32, n)
	for i := range positions {
		v, _ := f.Read(pm.Vertex(i), meshprep.UsagePosition)
		positions[i] = [3]float32{v[0], v[1], v[2]}
	}
	attrs[gltf.POSITION] = modeler.WritePosition(doc, positions)

	if f.Has(meshprep.UsageNormal) {
		normals := make([][3]float32, n)
		for i := range normals {
			v, _ := f.Read(pm.Vertex(i), meshprep.UsageNormal)
			normals[i] = [3]float32{v[0], v[1], v[2]}
		}
		attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}
	if f.Has(meshprep.UsageTangent) {
		attrs[gltf.TANGENT] = modeler.WriteTangent(doc, tangents(pm))
	}
	for _, uv := range []struct {
		usage meshprep.Usage
		name  string
	}{
		{meshprep.UsageTexCoord0, gltf.TEXCOORD_0},
		{meshprep.UsageTexCoord1, gltf.TEXCOORD_1},
	} {
		if !f.Has(uv.usage) {
			continue
		}
		coords := make([][2]float32, n)
		for i := range coords {
			v, _ := f.Read(pm.Vertex(i), uv.usage)
			coords[i] = [2]float32{v[0], v[1]}
		}
		attrs[uv.name] = modeler.WriteTextureCoord(doc, coords)
	}
	if m.Skinned && len(pm.Palettes()) > 0 && f.Has(meshprep.UsageBlendIndices) {
		joints, weights := globalInfluences(pm)
		attrs[gltf.JOINTS_0] = modeler.WriteJoints(doc, joints)
		attrs[gltf.WEIGHTS_0] = modeler.WriteWeights(doc, weights)
	}

	gm := &gltf.Mesh{Name: m.Name}
	indices := pm.Indices()
	palettes := pm.Palettes()
	for _, s := range pm.Subsets() {
		prim := &gltf.Primitive{
			Attributes: attrs,
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices[s.FaceStart*3:(s.FaceStart+s.FaceCount)*3])),
		}
		if int(s.DataGroup) < len(m.Groups) {
			prim.Material = m.Groups[s.DataGroup].Material
		}
		extras := map[string]any{"dataGroup": s.DataGroup}
		if s.Palette >= 0 && s.Palette < len(palettes) {
			extras["palette"] = palettes[s.Palette].Bones
		}
		prim.Extras = extras
		gm.Primitives = append(gm.Primitives, prim)
	}
	return gm
}

// tangents returns glTF vec4 tangents. A three-component tangent takes its
// handedness from the stored bitangent, or +1 without one.
func tangents(pm *meshprep.Mesh) [][4]float32 {
	f := pm.Format()
	a, _, _ := f.Lookup(meshprep.UsageTangent)
	out := make([][4]float32, pm.VertexCount())
	for i := range out {
		v := pm.Vertex(i)
		t, _ := f.Read(v, meshprep.UsageTangent)
		w := float32(1)
		switch {
		case a.Components == 4:
			if t[3] < 0 {
				w = -1
			}
		case f.Has(meshprep.UsageBitangent) && f.Has(meshprep.UsageNormal):
			nv, _ := f.Read(v, meshprep.UsageNormal)
			bv, _ := f.Read(v, meshprep.UsageBitangent)
			n := mgl32.Vec3{nv[0], nv[1], nv[2]}
			b := mgl32.Vec3{bv[0], bv[1], bv[2]}
			if n.Cross(mgl32.Vec3{t[0], t[1], t[2]}).Dot(b) < 0 {
				w = -1
			}
		}
		out[i] = [4]float32{t[0], t[1], t[2], w}
	}
	return out
}

// globalInfluences translates palette-local blend indices back to armature
// bones. Every vertex belongs to exactly one palette, found through the
// subsets that reference it. Weights are normalized to sum to one, which
// glTF requires.
func globalInfluences(pm *meshprep.Mesh) ([][4]uint16, [][4]float32) {
	f := pm.Format()
	n := pm.VertexCount()
	joints := make([][4]uint16, n)
	weights := make([][4]float32, n)
	done := make([]bool, n)
	indices := pm.Indices()
	palettes := pm.Palettes()
	for _, s := range pm.Subsets() {
		if s.Palette < 0 || s.Palette >= len(palettes) {
			continue
		}
		pal := palettes[s.Palette]
		for _, vi := range indices[s.FaceStart*3 : (s.FaceStart+s.FaceCount)*3] {
			if done[vi] {
				continue
			}
			done[vi] = true
			v := pm.Vertex(int(vi))
			local, _ := f.Read(v, meshprep.UsageBlendIndices)
			w, _ := f.Read(v, meshprep.UsageBlendWeight)
			var sum float32
			for k := 0; k < meshprep.MaxInfluences; k++ {
				li := int(local[k] + 0.5)
				if w[k] <= 0 || li >= len(pal.Bones) {
					continue
				}
				joints[vi][k] = uint16(pal.Bones[li])
				weights[vi][k] = w[k]
				sum += w[k]
			}
			if sum > 0 {
				for k := range weights[vi] {
					weights[vi][k] /= sum
				}
			}
		}
	}
	return joints, weights
}
