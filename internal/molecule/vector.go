package molecule

import "math"

// Vec3 is a point or free vector in Angstrom-scale Cartesian space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Mul(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Mul(1 / l)
}

func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// RotateAround rotates point p by angleDeg (right-handed, degrees) around
// the axis passing through pivot with unit direction axis, using Rodrigues'
// rotation formula.
func RotateAround(p, pivot, axis Vec3, angleDeg float64) Vec3 {
	axis = axis.Normalize()
	theta := angleDeg * math.Pi / 180.0
	rel := p.Sub(pivot)

	cosT := math.Cos(theta)
	sinT := math.Sin(theta)

	term1 := rel.Mul(cosT)
	term2 := axis.Cross(rel).Mul(sinT)
	term3 := axis.Mul(axis.Dot(rel) * (1 - cosT))

	rotated := term1.Add(term2).Add(term3)
	return pivot.Add(rotated)
}
