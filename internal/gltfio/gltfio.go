// Package gltfio moves meshes between glTF 2.0 files and meshprep.
//
// Load reads every mesh of a document into a preparation-state
// meshprep.Mesh, one data group per glTF primitive. Save writes prepared
// meshes back with one primitive per subset.
package gltfio

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/meshprep/pkg/meshprep"
)

// Mesh is one glTF mesh under preparation.
type Mesh struct {
	Name string
	Mesh *meshprep.Mesh
	// Skinned is set when JOINTS_0/WEIGHTS_0 were bound as a skin.
	Skinned bool
	// Transform is the world matrix of the node that instanced the mesh.
	// Identity once baked.
	Transform mgl32.Mat4
	// Groups holds one entry per data group, i.e. per source primitive.
	Groups []Group
}

// Group describes the source primitive a data group came from.
type Group struct {
	Material *uint32
}

// Bone is one joint of the scene armature.
type Bone struct {
	// Local is the rest transform relative to the parent joint.
	Local       mgl32.Mat4
	InverseBind mgl32.Mat4
}

// Scene is everything Load extracts from a document.
type Scene struct {
	Meshes []*Mesh
	// Armature collects the joints of every skin; armature node i is global
	// bone i and is described by Bones[i].
	Armature  *meshprep.Armature
	Bones     []Bone
	Materials []*gltf.Material
}

// LoadOptions controls import.
type LoadOptions struct {
	// Format returns the preparation format of a mesh; skinned reports
	// whether the mesh carries joints and weights.
	Format func(skinned bool) *meshprep.Format
	// BakeTransforms applies node world matrices to unskinned meshes.
	BakeTransforms bool
	// Skin binds JOINTS_0/WEIGHTS_0 as bind data.
	Skin   bool
	Logger *zap.Logger
}

func (o *LoadOptions) format(skinned bool) *meshprep.Format {
	if o.Format == nil {
		return meshprep.StandardFormat()
	}
	return o.Format(skinned)
}

func (o *LoadOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// SaveOptions controls export.
type SaveOptions struct {
	Binary    bool
	Generator string
	Logger    *zap.Logger
}

func (o *SaveOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
