// Package enu converts between WGS84 geodetic coordinates and a local
// east-north-up frame anchored at a reference point.
package enu

import "math"

const (
	semiMajor  = 6378137.0
	flattening = 1.0 / 298.257223563
)

var e2 = flattening * (2.0 - flattening)

// LLH is latitude and longitude in degrees plus height in meters.
type LLH struct {
	Lat    float64
	Lon    float64
	Height float64
}

// Vec3 is a cartesian vector in meters.
type Vec3 struct {
	X, Y, Z float64
}

func LLHToECEF(p LLH) Vec3 {
	sinp, cosp := math.Sincos(p.Lat * math.Pi / 180.0)
	sinl, cosl := math.Sincos(p.Lon * math.Pi / 180.0)
	v := semiMajor / math.Sqrt(1.0-e2*sinp*sinp)

	return Vec3{
		X: (v + p.Height) * cosp * cosl,
		Y: (v + p.Height) * cosp * sinl,
		Z: (v*(1.0-e2) + p.Height) * sinp,
	}
}

// ECEFToLLH iterates the latitude until it converges to below 1e-4 m.
func ECEFToLLH(r Vec3) LLH {
	r2 := r.X*r.X + r.Y*r.Y
	z := r.Z
	zk := 0.0
	v := semiMajor

	for math.Abs(z-zk) >= 1e-4 {
		zk = z
		sinp := z / math.Sqrt(r2+z*z)
		v = semiMajor / math.Sqrt(1.0-e2*sinp*sinp)
		z = r.Z + v*e2*sinp
	}

	var lat, lon float64
	if r2 > 1e-12 {
		lat = math.Atan(z / math.Sqrt(r2))
		lon = math.Atan2(r.Y, r.X)
	} else if r.Z > 0 {
		lat = math.Pi / 2
	} else {
		lat = -math.Pi / 2
	}

	return LLH{
		Lat:    lat * 180.0 / math.Pi,
		Lon:    lon * 180.0 / math.Pi,
		Height: math.Sqrt(r2+z*z) - v,
	}
}

// rotation returns the ECEF to ENU rotation rows for ref.
func rotation(ref LLH) [3][3]float64 {
	sinp, cosp := math.Sincos(ref.Lat * math.Pi / 180.0)
	sinl, cosl := math.Sincos(ref.Lon * math.Pi / 180.0)

	return [3][3]float64{
		{-sinl, cosl, 0},
		{-sinp * cosl, -sinp * sinl, cosp},
		{cosp * cosl, cosp * sinl, sinp},
	}
}

// LLHToENU returns p expressed in the local frame of ref.
func LLHToENU(ref, p LLH) Vec3 {
	o := LLHToECEF(ref)
	q := LLHToECEF(p)
	d := Vec3{q.X - o.X, q.Y - o.Y, q.Z - o.Z}
	m := rotation(ref)

	return Vec3{
		X: m[0][0]*d.X + m[0][1]*d.Y + m[0][2]*d.Z,
		Y: m[1][0]*d.X + m[1][1]*d.Y + m[1][2]*d.Z,
		Z: m[2][0]*d.X + m[2][1]*d.Y + m[2][2]*d.Z,
	}
}

// ENUToLLH is the inverse of LLHToENU.
func ENUToLLH(ref LLH, e Vec3) LLH {
	o := LLHToECEF(ref)
	m := rotation(ref)

	// transpose of the rotation
	d := Vec3{
		X: m[0][0]*e.X + m[1][0]*e.Y + m[2][0]*e.Z,
		Y: m[0][1]*e.X + m[1][1]*e.Y + m[2][1]*e.Z,
		Z: m[0][2]*e.X + m[1][2]*e.Y + m[2][2]*e.Z,
	}

	return ECEFToLLH(Vec3{o.X + d.X, o.Y + d.Y, o.Z + d.Z})
}
