package level

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/math"
)

func quad(vertices []math.Vertex, indices []uint32, corners ...math.Vec3) ([]math.Vertex, []uint32) {
	base := uint32(len(vertices))
	for _, c := range corners {
		vertices = append(vertices, math.Vertex{Position: c.ToVec4(1)})
	}
	return vertices, append(indices, base, base+1, base+2, base, base+2, base+3)
}

func contains(outer, inner CollisionNode) bool {
	const eps = 1e-4
	lo := outer.Center.Sub(outer.Extents)
	hi := outer.Center.Add(outer.Extents)
	ilo := inner.Center.Sub(inner.Extents)
	ihi := inner.Center.Add(inner.Extents)
	return ilo.X >= lo.X-eps && ilo.Y >= lo.Y-eps && ilo.Z >= lo.Z-eps &&
		ihi.X <= hi.X+eps && ihi.Y <= hi.Y+eps && ihi.Z <= hi.Z+eps
}

func TestBuildCollisionTreeEmpty(t *testing.T) {
	header, nodes := BuildCollisionTree(nil, nil)
	if header.Root != -1 || len(nodes) != 0 {
		t.Errorf("empty mesh = %+v, %d nodes", header, len(nodes))
	}
}

func TestBuildCollisionTree(t *testing.T) {
	var vertices []math.Vertex
	var indices []uint32
	for i := 0; i < 3; i++ {
		x := float32(i * 4)
		vertices, indices = quad(vertices, indices,
			math.NewVec3(x, 0, 0), math.NewVec3(x+1, 0, 0), math.NewVec3(x+1, 1, 0), math.NewVec3(x, 1, 0))
	}

	header, nodes := BuildCollisionTree(vertices, indices)
	triangles := len(indices) / 3
	if len(nodes) != 2*triangles-1 {
		t.Fatalf("nodes = %d, want %d", len(nodes), 2*triangles-1)
	}
	if int(header.Root) != len(nodes)-1 {
		t.Errorf("root = %d, want the last node", header.Root)
	}

	root := nodes[header.Root]
	if !root.Center.Compare(math.NewVec3(4.5, 0.5, 0), 1e-5) || !root.Extents.Compare(math.NewVec3(4.5, 0.5, 0), 1e-5) {
		t.Errorf("root box = %v +- %v", root.Center, root.Extents)
	}

	seen := map[int32]bool{}
	var walk func(index int32)
	walk = func(index int32) {
		node := nodes[index]
		if node.ElementIndex >= 0 {
			if node.Left != -1 || node.Right != -1 {
				t.Errorf("leaf %d has children", index)
			}
			if node.ElementIndex%3 != 0 || seen[node.ElementIndex] {
				t.Errorf("leaf %d has element %d", index, node.ElementIndex)
			}
			seen[node.ElementIndex] = true
			return
		}
		for _, child := range []int32{node.Left, node.Right} {
			if !contains(node, nodes[child]) {
				t.Errorf("node %d does not contain child %d", index, child)
			}
			walk(child)
		}
	}
	walk(header.Root)
	if len(seen) != triangles {
		t.Errorf("reached %d triangles, want %d", len(seen), triangles)
	}
}
