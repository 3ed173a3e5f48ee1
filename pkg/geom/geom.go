// Package geom provides the planar geometry primitives the Panner uses to
// place sources and loudspeakers, built on golang/geo's r2 (planar)
// subpackage.
package geom

import "github.com/golang/geo/r2"

// Point is a location in the mixer's 2-D sound field.
type Point = r2.Point

// Size is a width/height pair, reusing r2.Point as a vector type.
type Size = r2.Point

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return a.Sub(b).Norm()
}

// NewPoint is a convenience constructor matching r2.Point's field order.
func NewPoint(x, y float64) Point {
	return r2.Point{X: x, Y: y}
}
