package gltfio

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

// Load opens a .gltf or .glb file and decodes it.
func Load(path string, opts LoadOptions) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return Decode(doc, opts)
}

// Decode converts every mesh of doc into a preparation-state meshprep.Mesh.
// Non-triangle primitives are skipped. A mesh instanced by several nodes
// takes the transform of the first one.
func Decode(doc *gltf.Document, opts LoadOptions) (*Scene, error) {
	log := opts.logger()
	parents := nodeParents(doc)
	world := worldMatrices(doc, parents)
	owners := meshOwners(doc)
	arm := newArmatureBuilder(doc, parents)

	scene := &Scene{Materials: doc.Materials}
	skins := make([]*meshprep.Skin, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		d := &meshDecoder{
			doc:   doc,
			opts:  &opts,
			log:   log.With(zap.Int("mesh", mi)),
			owner: -1,
		}
		if node, ok := owners[mi]; ok {
			d.owner = node
			d.world = world[node]
			if s := doc.Nodes[node].Skin; s != nil && opts.Skin && int(*s) < len(doc.Skins) {
				bones, err := arm.skin(int(*s))
				if err != nil {
					return nil, errors.Wrapf(err, "mesh %d", mi)
				}
				d.joints = bones
			}
		}
		m, skin, err := d.decode(gm, mi)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d", mi)
		}
		scene.Meshes = append(scene.Meshes, m)
		skins[mi] = skin
	}

	scene.Armature, scene.Bones = arm.build()
	for i, m := range scene.Meshes {
		if skins[i] == nil {
			continue
		}
		if err := m.Mesh.BindSkin(skins[i], scene.Armature); err != nil {
			return nil, errors.Wrapf(err, "mesh %q", m.Name)
		}
	}

	log.Debug("document decoded",
		zap.Int("meshes", len(scene.Meshes)),
		zap.Int("bones", len(scene.Bones)))
	return scene, nil
}

// meshOwners maps each mesh to the first node that instances it.
func meshOwners(doc *gltf.Document) map[int]int {
	owners := make(map[int]int)
	for i, n := range doc.Nodes {
		if n.Mesh == nil {
			continue
		}
		if _, ok := owners[int(*n.Mesh)]; !ok {
			owners[int(*n.Mesh)] = i
		}
	}
	return owners
}

type meshDecoder struct {
	doc   *gltf.Document
	opts  *LoadOptions
	log   *zap.Logger
	owner int
	world mgl32.Mat4
	// joints maps skin-local joint indices to global bones; nil when the
	// mesh is not skinned.
	joints []uint32
}

func (d *meshDecoder) decode(gm *gltf.Mesh, mi int) (*Mesh, *meshprep.Skin, error) {
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("mesh%d", mi)
	}
	skinned := d.joints != nil && hasSkinAttributes(gm)

	var bake *baker
	transform := mgl32.Ident4()
	if d.owner >= 0 {
		transform = d.world
	}
	if d.opts.BakeTransforms && !skinned && !isIdentity(transform) {
		bake = newBaker(transform)
		transform = mgl32.Ident4()
	}

	pm, err := meshprep.New(d.opts.format(skinned), meshprep.WithLogger(d.log))
	if err != nil {
		return nil, nil, err
	}
	out := &Mesh{
		Name:      name,
		Mesh:      pm,
		Skinned:   skinned,
		Transform: transform,
		Groups:    make([]Group, len(gm.Primitives)),
	}

	var skin *meshprep.Skin
	if skinned {
		skin = &meshprep.Skin{}
	}
	for pi, prim := range gm.Primitives {
		out.Groups[pi] = Group{Material: prim.Material}
		if prim.Mode != gltf.PrimitiveTriangles {
			d.log.Warn("skipping non-triangle primitive",
				zap.Int("primitive", pi),
				zap.Int("mode", int(prim.Mode)))
			continue
		}
		data, err := readPrimitive(d.doc, prim)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "primitive %d", pi)
		}
		if bake != nil {
			data.bake(bake)
		}
		remap, err := pm.AddTriangles(data.source(), meshprep.TrianglesFromIndices(data.indices, uint32(pi)))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "primitive %d", pi)
		}
		if skinned && data.joints != nil {
			src, err := data.skin(d.joints)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "primitive %d", pi)
			}
			mergeSkin(skin, src.Remap(remap))
		}
	}
	d.log.Debug("mesh decoded",
		zap.String("name", name),
		zap.Int("vertices", pm.VertexCount()),
		zap.Int("triangles", pm.TriangleCount()),
		zap.Bool("skinned", skinned))
	return out, skin, nil
}

func hasSkinAttributes(gm *gltf.Mesh) bool {
	for _, p := range gm.Primitives {
		_, j := p.Attributes[gltf.JOINTS_0]
		_, w := p.Attributes[gltf.WEIGHTS_0]
		if j && w {
			return true
		}
	}
	return false
}

func mergeSkin(dst, src *meshprep.Skin) {
	if len(dst.Bones) < len(src.Bones) {
		dst.Bones = append(dst.Bones, make([][]meshprep.Influence, len(src.Bones)-len(dst.Bones))...)
	}
	for b, infl := range src.Bones {
		dst.Bones[b] = append(dst.Bones[b], infl...)
	}
}

// primitiveData holds the attribute arrays of one primitive.
type primitiveData struct {
	positions [][3]float32
	normals   [][3]float32
	tangents  [][4]float32
	uv0, uv1  [][2]float32
	joints    [][4]uint16
	weights   [][4]float32
	indices   []uint32
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*primitiveData, error) {
	pos, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, meshprep.ErrMissingPosition
	}
	acc, err := accessor(doc, pos)
	if err != nil {
		return nil, err
	}
	data := &primitiveData{}
	if data.positions, err = modeler.ReadPosition(doc, acc, nil); err != nil {
		return nil, errors.Wrap(err, "read POSITION")
	}
	n := len(data.positions)

	read := func(name string, fn func(*gltf.Accessor) (int, error)) error {
		idx, ok := prim.Attributes[name]
		if !ok {
			return nil
		}
		acc, err := accessor(doc, idx)
		if err != nil {
			return err
		}
		count, err := fn(acc)
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		if count != n {
			return errors.Errorf("%s has %d elements, POSITION has %d", name, count, n)
		}
		return nil
	}
	steps := []struct {
		name string
		fn   func(*gltf.Accessor) (int, error)
	}{
		{gltf.NORMAL, func(a *gltf.Accessor) (int, error) {
			var err error
			data.normals, err = modeler.ReadNormal(doc, a, nil)
			return len(data.normals), err
		}},
		{gltf.TANGENT, func(a *gltf.Accessor) (int, error) {
			var err error
			data.tangents, err = modeler.ReadTangent(doc, a, nil)
			return len(data.tangents), err
		}},
		{gltf.TEXCOORD_0, func(a *gltf.Accessor) (int, error) {
			var err error
			data.uv0, err = modeler.ReadTextureCoord(doc, a, nil)
			return len(data.uv0), err
		}},
		{gltf.TEXCOORD_1, func(a *gltf.Accessor) (int, error) {
			var err error
			data.uv1, err = modeler.ReadTextureCoord(doc, a, nil)
			return len(data.uv1), err
		}},
		{gltf.JOINTS_0, func(a *gltf.Accessor) (int, error) {
			var err error
			data.joints, err = modeler.ReadJoints(doc, a, nil)
			return len(data.joints), err
		}},
		{gltf.WEIGHTS_0, func(a *gltf.Accessor) (int, error) {
			var err error
			data.weights, err = modeler.ReadWeights(doc, a, nil)
			return len(data.weights), err
		}},
	}
	for _, s := range steps {
		if err := read(s.name, s.fn); err != nil {
			return nil, err
		}
	}
	if data.joints == nil || data.weights == nil {
		data.joints, data.weights = nil, nil
	}

	if prim.Indices == nil {
		data.indices = make([]uint32, n)
		for i := range data.indices {
			data.indices[i] = uint32(i)
		}
		return data, nil
	}
	acc, err = accessor(doc, *prim.Indices)
	if err != nil {
		return nil, err
	}
	if data.indices, err = modeler.ReadIndices(doc, acc, nil); err != nil {
		return nil, errors.Wrap(err, "read indices")
	}
	return data, nil
}

func accessor(doc *gltf.Document, idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, errors.Errorf("accessor %d out of range (%d accessors)", idx, len(doc.Accessors))
	}
	return doc.Accessors[idx], nil
}

func (p *primitiveData) bake(b *baker) {
	for i := range p.positions {
		p.positions[i] = b.position(p.positions[i])
	}
	for i := range p.normals {
		p.normals[i] = b.direction(p.normals[i])
	}
	for i := range p.tangents {
		p.tangents[i] = b.tangent(p.tangents[i])
	}
	if b.mirrored {
		for i := 0; i+2 < len(p.indices); i += 3 {
			p.indices[i+1], p.indices[i+2] = p.indices[i+2], p.indices[i+1]
		}
	}
}

// format describes the attributes present as a float layout.
func (p *primitiveData) format() *meshprep.Format {
	attrs := []meshprep.Attribute{{Usage: meshprep.UsagePosition, Components: 3, Type: meshprep.Float32}}
	if p.normals != nil {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageNormal, Components: 3, Type: meshprep.Float32})
	}
	if p.tangents != nil {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTangent, Components: 4, Type: meshprep.Float32})
	}
	if p.uv0 != nil {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTexCoord0, Components: 2, Type: meshprep.Float32})
	}
	if p.uv1 != nil {
		attrs = append(attrs, meshprep.Attribute{Usage: meshprep.UsageTexCoord1, Components: 2, Type: meshprep.Float32})
	}
	return meshprep.MustFormat(attrs...)
}

// source packs the attributes into an interleaved vertex array.
func (p *primitiveData) source() meshprep.Source {
	f := p.format()
	stride := f.Stride()
	data := make([]byte, len(p.positions)*stride)
	for i, pos := range p.positions {
		v := data[i*stride : (i+1)*stride]
		f.Write(v, meshprep.UsagePosition, [4]float32{pos[0], pos[1], pos[2]})
		if p.normals != nil {
			n := p.normals[i]
			f.Write(v, meshprep.UsageNormal, [4]float32{n[0], n[1], n[2]})
		}
		if p.tangents != nil {
			f.Write(v, meshprep.UsageTangent, p.tangents[i])
		}
		if p.uv0 != nil {
			f.Write(v, meshprep.UsageTexCoord0, [4]float32{p.uv0[i][0], p.uv0[i][1]})
		}
		if p.uv1 != nil {
			f.Write(v, meshprep.UsageTexCoord1, [4]float32{p.uv1[i][0], p.uv1[i][1]})
		}
	}
	return meshprep.Source{Format: f, Data: data}
}

// skin converts JOINTS_0/WEIGHTS_0 into bind data keyed by source vertex.
// joints maps skin-local joint indices to global bones.
func (p *primitiveData) skin(joints []uint32) (*meshprep.Skin, error) {
	s := &meshprep.Skin{}
	for v := range p.joints {
		for k := 0; k < meshprep.MaxInfluences; k++ {
			w := p.weights[v][k]
			if w <= 0 {
				continue
			}
			j := int(p.joints[v][k])
			if j >= len(joints) {
				return nil, errors.Wrapf(meshprep.ErrInvalidSkin, "vertex %d uses joint %d of %d", v, j, len(joints))
			}
			bone := int(joints[j])
			if bone >= len(s.Bones) {
				s.Bones = append(s.Bones, make([][]meshprep.Influence, bone+1-len(s.Bones))...)
			}
			s.Bones[bone] = append(s.Bones[bone], meshprep.Influence{Vertex: uint32(v), Weight: w})
		}
	}
	return s, nil
}
