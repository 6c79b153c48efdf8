package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointInConvex(t *testing.T) {
	t.Parallel()

	square := []Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	reversed := []Point2D{square[3], square[2], square[1], square[0]}
	diamond := make([]Point2D, len(square))
	for i, v := range square {
		diamond[i] = RotationDegrees(45).Apply(v)
	}

	tests := []struct {
		name    string
		polygon []Point2D
		p       Point2D
		want    bool
	}{
		{"inside", square, Point2D{X: 5, Y: 5}, true},
		{"edge", square, Point2D{X: 10, Y: 5}, true},
		{"corner", square, Point2D{X: 0, Y: 0}, true},
		{"outside", square, Point2D{X: 11, Y: 5}, false},
		{"reversed winding", reversed, Point2D{X: 2, Y: 8}, true},
		{"rotated inside", diamond, Point2D{X: 0, Y: 7}, true},
		{"rotated bounding box corner", diamond, Point2D{X: 6, Y: 1}, false},
		{"degenerate", square[:2], Point2D{X: 5, Y: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInConvex(tt.p, tt.polygon))
		})
	}
}
