package level

import (
	"slices"

	"github.com/spaghettifunk/prism/engine/math"
)

// BuildCollisionTree builds a bounding volume hierarchy over the triangles of
// an indexed mesh. Triangles are split at the median of their centroids along
// the longest axis. The root is the last node.
func BuildCollisionTree(vertices []math.Vertex, indices []uint32) (CollisionNodeHeader, []CollisionNode) {
	count := len(indices) / 3
	if count == 0 {
		return CollisionNodeHeader{Root: -1}, nil
	}
	b := &treeBuilder{vertices: vertices, indices: indices}
	triangles := make([]int32, count)
	for i := range triangles {
		triangles[i] = int32(i)
	}
	root := b.build(triangles)
	return CollisionNodeHeader{Root: root}, b.nodes
}

type treeBuilder struct {
	vertices []math.Vertex
	indices  []uint32
	nodes    []CollisionNode
}

func (b *treeBuilder) corners(triangle int32) [3]math.Vec3 {
	first := triangle * 3
	return [3]math.Vec3{
		b.vertices[b.indices[first]].Position.ToVec3(),
		b.vertices[b.indices[first+1]].Position.ToVec3(),
		b.vertices[b.indices[first+2]].Position.ToVec3(),
	}
}

func (b *treeBuilder) bounds(triangles []int32) math.Extents3D {
	first := b.corners(triangles[0])
	e := math.Extents3D{Min: first[0], Max: first[0]}
	for _, t := range triangles {
		for _, p := range b.corners(t) {
			e.Min = math.Vec3{X: min(e.Min.X, p.X), Y: min(e.Min.Y, p.Y), Z: min(e.Min.Z, p.Z)}
			e.Max = math.Vec3{X: max(e.Max.X, p.X), Y: max(e.Max.Y, p.Y), Z: max(e.Max.Z, p.Z)}
		}
	}
	return e
}

func (b *treeBuilder) centroid(triangle int32) math.Vec3 {
	c := b.corners(triangle)
	return c[0].Add(c[1]).Add(c[2]).MulScalar(1.0 / 3.0)
}

func (b *treeBuilder) build(triangles []int32) int32 {
	e := b.bounds(triangles)
	node := CollisionNode{
		Center:       e.Min.Add(e.Max).MulScalar(0.5),
		Extents:      e.Size().MulScalar(0.5),
		Left:         -1,
		Right:        -1,
		ElementIndex: -1,
	}
	if len(triangles) == 1 {
		node.ElementIndex = triangles[0] * 3
		b.nodes = append(b.nodes, node)
		return int32(len(b.nodes) - 1)
	}

	size := e.Size()
	axis := func(v math.Vec3) float32 { return v.X }
	if size.Y > size.X && size.Y >= size.Z {
		axis = func(v math.Vec3) float32 { return v.Y }
	} else if size.Z > size.X && size.Z > size.Y {
		axis = func(v math.Vec3) float32 { return v.Z }
	}
	slices.SortStableFunc(triangles, func(a, c int32) int {
		ka, kc := axis(b.centroid(a)), axis(b.centroid(c))
		switch {
		case ka < kc:
			return -1
		case ka > kc:
			return 1
		}
		return 0
	})

	half := len(triangles) / 2
	node.Left = b.build(triangles[:half])
	node.Right = b.build(triangles[half:])
	b.nodes = append(b.nodes, node)
	return int32(len(b.nodes) - 1)
}
