package map_renderer

import (
	"math"

	"osmview/internal/model"
)

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// normalizeAngleRad maps angle into [0, 2π).
func normalizeAngleRad(angle float64) float64 {
	angle = math.Mod(angle, 2.0*math.Pi)
	if angle < 0 {
		angle += 2.0 * math.Pi
	}
	return angle
}

// minMaxEps orders x and y and widens the interval by a relative epsilon.
func minMaxEps(x, y float64) (lo, hi float64) {
	eps := math.Max(math.Abs(x), math.Abs(y)) / 1e10
	if x > y {
		return y - eps, x + eps
	}
	return x - eps, y + eps
}

type point struct {
	X, Y float64
}

func pointWithinRect(p point, xStart, xEnd, yStart, yEnd float64) bool {
	return p.X >= xStart && p.X <= xEnd && p.Y >= yStart && p.Y <= yEnd
}

// segmentsIntersect reports whether segment p1-p2 crosses segment q1-q2.
// Parallel segments never intersect.
func segmentsIntersect(p1, p2, q1, q2 point) bool {
	a1 := p2.Y - p1.Y
	b1 := p1.X - p2.X
	c1 := a1*p1.X + b1*p1.Y

	a2 := q2.Y - q1.Y
	b2 := q1.X - q2.X
	c2 := a2*q1.X + b2*q1.Y

	det := a1*b2 - a2*b1
	if math.Abs(det) < 1e-6 {
		return false
	}

	x := (b2*c1 - b1*c2) / det
	y := (a1*c2 - a2*c1) / det

	pxMin, pxMax := minMaxEps(p1.X, p2.X)
	pyMin, pyMax := minMaxEps(p1.Y, p2.Y)
	qxMin, qxMax := minMaxEps(q1.X, q2.X)
	qyMin, qyMax := minMaxEps(q1.Y, q2.Y)

	return x <= pxMax && x >= pxMin && y <= pyMax && y >= pyMin &&
		x <= qxMax && x >= qxMin && y <= qyMax && y >= qyMin
}

// segmentCrossesRect reports whether p1-p2 crosses any edge of the rect.
func segmentCrossesRect(p1, p2 point, xStart, xEnd, yStart, yEnd float64) bool {
	return segmentsIntersect(p1, p2, point{xStart, yStart}, point{xEnd, yStart}) ||
		segmentsIntersect(p1, p2, point{xStart, yStart}, point{xStart, yEnd}) ||
		segmentsIntersect(p1, p2, point{xStart, yEnd}, point{xEnd, yEnd}) ||
		segmentsIntersect(p1, p2, point{xEnd, yStart}, point{xEnd, yEnd})
}

func pointMm(p model.LocPoint) point {
	x, y := p.PointMm()
	return point{x, y}
}

// closestPoint returns the index of the point nearest to p and its distance,
// or -1 and -1 for an empty list.
func closestPoint(p model.LocPoint, points []model.LocPoint) (int, float64) {
	closest := -1
	dist := -1.0
	for i, q := range points {
		d := q.DistanceTo(p)
		if dist < 0 || d < dist {
			dist = d
			closest = i
		}
	}
	return closest, dist
}
