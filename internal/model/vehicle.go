package model

import (
	"fmt"
	"image/color"
)

// CarInfo describes a ground vehicle. Dimensions are in meters.
type CarInfo struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Location     LocPoint   `json:"location"`
	LocationGps  LocPoint   `json:"location_gps"`
	LocationUwb  LocPoint   `json:"location_uwb"`
	ApGoal       LocPoint   `json:"ap_goal"`
	Color        color.RGBA `json:"color"`
	Time         int32      `json:"time"`
	Length       float64    `json:"length"`
	Width        float64    `json:"width"`
	CornerRadius float64    `json:"corner_radius"`
}

func NewCarInfo(id int, name string) CarInfo {
	if name == "" {
		name = fmt.Sprintf("Car %d", id)
	}

	goal := NewLocPoint(0, 0)
	goal.Radius = 0

	return CarInfo{
		ID:           id,
		Name:         name,
		Location:     NewLocPoint(0, 0),
		LocationGps:  NewLocPoint(0, 0),
		LocationUwb:  NewLocPoint(0, 0),
		ApGoal:       goal,
		Color:        color.RGBA{255, 0, 0, 255},
		Length:       0.8,
		Width:        0.335,
		CornerRadius: 0.02,
	}
}

// CopterInfo describes a multirotor.
type CopterInfo struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Location    LocPoint   `json:"location"`
	LocationGps LocPoint   `json:"location_gps"`
	ApGoal      LocPoint   `json:"ap_goal"`
	Color       color.RGBA `json:"color"`
	Time        int32      `json:"time"`
}

func NewCopterInfo(id int, name string) CopterInfo {
	if name == "" {
		name = fmt.Sprintf("Copter %d", id)
	}

	goal := NewLocPoint(0, 0)
	goal.Radius = 0

	return CopterInfo{
		ID:          id,
		Name:        name,
		Location:    NewLocPoint(0, 0),
		LocationGps: NewLocPoint(0, 0),
		ApGoal:      goal,
		Color:       color.RGBA{0, 0, 255, 255},
	}
}

// FormatTime renders milliseconds since midnight as hh:mm:ss:zzz.
func FormatTime(ms int32) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d:%03d", h, m, s, ms%1000)
}
