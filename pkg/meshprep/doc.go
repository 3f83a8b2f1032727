// Package meshprep turns triangle soups into renderer-ready meshes.
//
// A Mesh starts in StatePreparing. Triangles are ingested with AddTriangles,
// optional skin data is attached with BindSkin, and Finalize runs the
// pipeline: degenerate scan, normal generation (with vertex splitting),
// welding, tangent generation, bone palette allocation, subset sorting and
// vertex cache optimization. The result is an immutable vertex/index pair
// with a subset table and bone palettes, and the mesh moves to
// StatePrepared. BeginPreparation rolls a prepared mesh back.
//
// A Mesh must not be used from more than one goroutine at a time.
package meshprep
