package geometry

// PointInConvex reports whether p lies inside or on the edge of the convex
// polygon. Vertex order may be clockwise or counter-clockwise.
func PointInConvex(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}
	var pos, neg bool
	for i := range polygon {
		cross := crossProduct(polygon[i], polygon[(i+1)%len(polygon)], p)
		if cross > 0 {
			pos = true
		} else if cross < 0 {
			neg = true
		}
		if pos && neg {
			return false
		}
	}
	return true
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
