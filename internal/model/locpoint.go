// Package model holds the overlay objects drawn on top of the map: located
// points, cars and copters. Coordinates are meters in the local ENU frame.
package model

import (
	"image/color"
	"math"
)

// LocPoint is a point in the local frame with optional attitude and
// presentation attributes.
type LocPoint struct {
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Height   float64    `json:"height"`
	Roll     float64    `json:"roll"`
	Pitch    float64    `json:"pitch"`
	Yaw      float64    `json:"yaw"`
	Speed    float64    `json:"speed"`
	Radius   float64    `json:"radius"`
	Sigma    float64    `json:"sigma"`
	Info     string     `json:"info,omitempty"`
	Color    color.RGBA `json:"color"`
	Time     int32      `json:"time"`
	ID       int        `json:"id"`
	DrawLine bool       `json:"draw_line"`
}

// NewLocPoint returns a point at (x, y) with default attributes.
func NewLocPoint(x, y float64) LocPoint {
	return LocPoint{
		X:        x,
		Y:        y,
		Speed:    0.5,
		Radius:   5.0,
		Color:    color.RGBA{0, 0, 0, 255},
		DrawLine: true,
	}
}

func (p LocPoint) DistanceTo(o LocPoint) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// PointMm returns the position in millimeters, the renderer's world unit.
func (p LocPoint) PointMm() (float64, float64) {
	return p.X * 1000.0, p.Y * 1000.0
}

// SetXY moves the point keeping every other attribute.
func (p *LocPoint) SetXY(x, y float64) {
	p.X = x
	p.Y = y
}

// Equal compares position, attitude and annotation.
func (p LocPoint) Equal(o LocPoint) bool {
	return p.X == o.X && p.Y == o.Y && p.Height == o.Height &&
		p.Roll == o.Roll && p.Pitch == o.Pitch && p.Yaw == o.Yaw &&
		p.Info == o.Info && p.ID == o.ID && p.Time == o.Time
}
