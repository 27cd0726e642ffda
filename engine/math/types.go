package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief a 4x4 column-major matrix, as consumed by the shaders. */
type Mat4 struct {
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief A vertex as laid out in the level vertex buffer. The lightmap
 * raytrace pipeline reads only Position, the copy pass reads LightmapUV.
 */
type Vertex struct {
	Position   Vec4
	Normal     Vec3
	LightmapUV Vec2
	_          float32
}
