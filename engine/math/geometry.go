package math

// GeometryGenerateNormals writes a flat face normal into the three vertices of every triangle.
func GeometryGenerateNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		p0 := vertices[i0].Position.ToVec3()
		edge1 := vertices[i1].Position.ToVec3().Sub(p0)
		edge2 := vertices[i2].Position.ToVec3().Sub(p0)

		// NOTE: face normals only, shared vertices take the last triangle's normal.
		normal := edge1.Cross(edge2).Normalize()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GeometryBounds returns the axis aligned extents of the vertex positions.
func GeometryBounds(vertices []Vertex) Extents3D {
	if len(vertices) == 0 {
		return Extents3D{}
	}
	first := vertices[0].Position.ToVec3()
	e := Extents3D{Min: first, Max: first}
	for _, v := range vertices[1:] {
		p := v.Position.ToVec3()
		e.Min = Vec3{min(e.Min.X, p.X), min(e.Min.Y, p.Y), min(e.Min.Z, p.Z)}
		e.Max = Vec3{max(e.Max.X, p.X), max(e.Max.Y, p.Y), max(e.Max.Z, p.Z)}
	}
	return e
}
