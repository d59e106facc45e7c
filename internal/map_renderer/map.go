// Package map_renderer draws OpenStreetMap tiles and overlay objects for a
// viewport in a local east-north-up frame and handles pan, zoom and editing
// input. A Map is not safe for concurrent use; it is meant to be owned by the
// same goroutine as its tile source.
package map_renderer

import (
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"osmview/internal/enu"
	"osmview/internal/model"
	"osmview/internal/osm_client"
	"osmview/internal/tile"
)

const (
	ScaleMin     = 0.000001
	ScaleMax     = 20.0
	DefaultScale = 0.1

	DefaultOsmMaxZoom = 19

	offsetLimit    = 2000000000.0
	tileLoopLimit  = 40
	infoMinDist    = 0.02
	pickRadiusPx   = 20.0
	mouseNotLocked = 1000000
)

// TileSource is the cache the map pulls tiles from while painting.
type TileSource interface {
	GetTile(zoom, x, y int) (tile.Tile, osm_client.Status)
	DownloadQueueFull() bool
	StartDownload(zoom, x, y int) osm_client.DownloadResult
	Stats() osm_client.Stats
}

// Hooks are called synchronously from the goroutine that drives the map.
// Nil hooks are skipped.
type Hooks struct {
	PosSet                func(id int, pos model.LocPoint)
	RoutePointAdded       func(pos model.LocPoint)
	LastRoutePointRemoved func(pos model.LocPoint)
	InfoPointClicked      func(info model.LocPoint)
	ScaleChanged          func(scale float64)
	OffsetChanged         func(x, y float64)
	InfoTraceChanged      func(traceNow int)
}

type Map struct {
	logger *zap.Logger
	source TileSource
	hooks  Hooks

	width  int
	height int

	scale    float64
	rotation float64
	xOffset  float64
	yOffset  float64

	ref          enu.LLH
	drawOsm      bool
	osmZoom      int
	osmRes       float64
	osmMaxZoom   int
	drawOsmStats bool

	followCar   int
	traceCar    int
	selectedCar int

	cars    []model.CarInfo
	copters []model.CopterInfo
	anchors []model.LocPoint

	carTrace    []model.LocPoint
	carTraceGps []model.LocPoint
	carTraceUwb []model.LocPoint

	routes   [][]model.LocPoint
	routeNow int

	infoTraces        [][]model.LocPoint
	infoTraceNow      int
	visibleInfoPoints []model.LocPoint
	closestInfo       model.LocPoint

	drawGrid          bool
	drawRouteText     bool
	drawUwbTrace      bool
	infoTraceTextZoom float64
	traceMinSpaceCar  float64
	traceMinSpaceGps  float64

	routePointSpeed    float64
	routePointTime     int32
	anchorID           int
	anchorHeight       float64
	anchorMode         bool
	routePointSelected int
	anchorSelected     int

	mouseLastX float64
	mouseLastY float64

	interactionMode InteractionMode
	modules         []Module
}

// New returns a map with the default viewport anchored at ref.
func New(source TileSource, ref enu.LLH, logger *zap.Logger) *Map {
	return &Map{
		logger:             logger,
		source:             source,
		width:              800,
		height:             600,
		scale:              DefaultScale,
		ref:                ref,
		drawOsm:            source != nil,
		osmZoom:            15,
		osmRes:             1.0,
		osmMaxZoom:         DefaultOsmMaxZoom,
		followCar:          -1,
		traceCar:           -1,
		selectedCar:        -1,
		routes:             [][]model.LocPoint{{}},
		infoTraces:         [][]model.LocPoint{{}},
		drawGrid:           true,
		drawRouteText:      true,
		infoTraceTextZoom:  0.5,
		traceMinSpaceCar:   0.05,
		traceMinSpaceGps:   0.05,
		routePointSpeed:    1.0,
		anchorHeight:       1.0,
		routePointSelected: -1,
		anchorSelected:     -1,
		mouseLastX:         mouseNotLocked,
		mouseLastY:         mouseNotLocked,
	}
}

// SetHooks replaces the notification callbacks.
func (m *Map) SetHooks(h Hooks) {
	m.hooks = h
}

// SetSize sets the widget size used by input handling and PrintPNG.
func (m *Map) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Map) Size() (int, int) {
	return m.width, m.height
}

// Cars

func (m *Map) Car(id int) *model.CarInfo {
	for i := range m.cars {
		if m.cars[i].ID == id {
			return &m.cars[i]
		}
	}
	return nil
}

func (m *Map) Copter(id int) *model.CopterInfo {
	for i := range m.copters {
		if m.copters[i].ID == id {
			return &m.copters[i]
		}
	}
	return nil
}

func (m *Map) Cars() []model.CarInfo {
	return append([]model.CarInfo(nil), m.cars...)
}

func (m *Map) Copters() []model.CopterInfo {
	return append([]model.CopterInfo(nil), m.copters...)
}

func (m *Map) AddCar(car model.CarInfo) {
	m.cars = append(m.cars, car)
}

// SetCar replaces the car with the same id or adds it.
func (m *Map) SetCar(car model.CarInfo) {
	if c := m.Car(car.ID); c != nil {
		*c = car
		return
	}
	m.AddCar(car)
}

func (m *Map) AddCopter(copter model.CopterInfo) {
	m.copters = append(m.copters, copter)
}

// RemoveCar removes the first car with id.
func (m *Map) RemoveCar(id int) bool {
	for i := range m.cars {
		if m.cars[i].ID == id {
			m.cars = append(m.cars[:i], m.cars[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Map) RemoveCopter(id int) bool {
	for i := range m.copters {
		if m.copters[i].ID == id {
			m.copters = append(m.copters[:i], m.copters[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Map) ClearCars() {
	m.cars = nil
}

func (m *Map) ClearCopters() {
	m.copters = nil
}

func (m *Map) SetFollowCar(id int) {
	m.followCar = id
}

func (m *Map) SetTraceCar(id int) {
	m.traceCar = id
}

func (m *Map) SetSelectedCar(id int) {
	m.selectedCar = id
}

func (m *Map) SelectedCar() int {
	return m.selectedCar
}

// Anchors

func (m *Map) Anchor(id int) *model.LocPoint {
	for i := range m.anchors {
		if m.anchors[i].ID == id {
			return &m.anchors[i]
		}
	}
	return nil
}

func (m *Map) AddAnchor(anchor model.LocPoint) {
	m.anchors = append(m.anchors, anchor)
}

// RemoveAnchor removes every anchor with id.
func (m *Map) RemoveAnchor(id int) bool {
	found := false
	kept := m.anchors[:0]
	for _, a := range m.anchors {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	m.anchors = kept
	return found
}

func (m *Map) ClearAnchors() {
	m.anchors = nil
}

func (m *Map) Anchors() []model.LocPoint {
	return append([]model.LocPoint(nil), m.anchors...)
}

func (m *Map) SetAnchorMode(on bool)        { m.anchorMode = on }
func (m *Map) AnchorMode() bool             { return m.anchorMode }
func (m *Map) SetAnchorID(id int)           { m.anchorID = id }
func (m *Map) SetAnchorHeight(h float64)    { m.anchorHeight = h }
func (m *Map) SetRoutePointSpeed(s float64) { m.routePointSpeed = s }
func (m *Map) SetRoutePointTime(t int32)    { m.routePointTime = t }
func (m *Map) RoutePointTime() int32        { return m.routePointTime }

// Viewport

// SetScaleFactor sets the zoom and keeps the same map point centered.
func (m *Map) SetScaleFactor(scale float64) {
	diff := scale / m.scale
	m.scale = scale
	m.xOffset *= diff
	m.yOffset *= diff
}

func (m *Map) ScaleFactor() float64 {
	return m.scale
}

// SetRotation sets the view rotation in degrees.
func (m *Map) SetRotation(deg float64) {
	m.rotation = deg
}

func (m *Map) Rotation() float64 {
	return m.rotation
}

func (m *Map) SetXOffset(v float64) { m.xOffset = v }
func (m *Map) SetYOffset(v float64) { m.yOffset = v }

// Offset returns the pan offset in pixels.
func (m *Map) Offset() (float64, float64) {
	return m.xOffset, m.yOffset
}

// ViewState is the part of the map that decides what a paint shows.
type ViewState struct {
	Scale        float64 `json:"scale"`
	Rotation     float64 `json:"rotation"`
	XOffset      float64 `json:"x_offset"`
	YOffset      float64 `json:"y_offset"`
	DrawGrid     bool    `json:"draw_grid"`
	DrawOsmStats bool    `json:"draw_osm_stats"`
}

func (m *Map) ViewState() ViewState {
	return ViewState{
		Scale:        m.scale,
		Rotation:     m.rotation,
		XOffset:      m.xOffset,
		YOffset:      m.yOffset,
		DrawGrid:     m.drawGrid,
		DrawOsmStats: m.drawOsmStats,
	}
}

// SetViewState restores a state taken with ViewState. The scale is clamped
// on the next paint.
func (m *Map) SetViewState(v ViewState) {
	m.scale = v.Scale
	m.rotation = v.Rotation
	m.xOffset = v.XOffset
	m.yOffset = v.YOffset
	m.drawGrid = v.DrawGrid
	m.drawOsmStats = v.DrawOsmStats
}

// MoveView centers the view on (px, py) in meters.
func (m *Map) MoveView(px, py float64) {
	m.xOffset = -px * 1000.0 * m.scale
	m.yOffset = -py * 1000.0 * m.scale
}

// MoveViewLLH centers the view on a geodetic position.
func (m *Map) MoveViewLLH(lat, lon float64) {
	e := enu.LLHToENU(m.ref, enu.LLH{Lat: lat, Lon: lon, Height: m.ref.Height})
	m.MoveView(e.X, e.Y)
}

// ZoomInOnBound fits a (lon, lat) bound into the widget with the given
// relative margins.
func (m *Map) ZoomInOnBound(b orb.Bound, margins float64) {
	pts := make([]model.LocPoint, 0, 2)
	for _, c := range []orb.Point{b.Min, b.Max} {
		e := enu.LLHToENU(m.ref, enu.LLH{Lat: c.Lat(), Lon: c.Lon(), Height: m.ref.Height})
		pts = append(pts, model.NewLocPoint(e.X, e.Y))
	}
	m.zoomInOn(pts, margins, 0, 0)
}

// MousePosRelative converts a widget position to map millimeters.
func (m *Map) MousePosRelative(px, py float64) (float64, float64) {
	x := (px - m.xOffset - float64(m.width)/2.0) / m.scale
	y := (-py - m.yOffset + float64(m.height)/2.0) / m.scale
	return x, y
}

func (m *Map) mousePosMap(px, py float64) model.LocPoint {
	x, y := m.MousePosRelative(px, py)
	return model.NewLocPoint(x/1000.0, y/1000.0)
}

// clampView keeps the scale within [ScaleMin, ScaleMax], follows the tracked
// vehicle and limits the offset so world millimeters stay within int32.
func (m *Map) clampView() {
	// A scale that cannot be rescaled from restarts at the minimum, centered.
	if !(m.scale > 0) || math.IsInf(m.scale, 0) {
		m.scale = ScaleMin
		m.xOffset = 0
		m.yOffset = 0
	}

	if m.scale < ScaleMin {
		diff := ScaleMin / m.scale
		m.scale = ScaleMin
		m.xOffset *= diff
		m.yOffset *= diff
	} else if m.scale > ScaleMax {
		diff := ScaleMax / m.scale
		m.scale = ScaleMax
		m.xOffset *= diff
		m.yOffset *= diff
	}

	if m.followCar >= 0 {
		for _, c := range m.cars {
			if c.ID == m.followCar {
				m.MoveView(c.Location.X, c.Location.Y)
			}
		}
		for _, c := range m.copters {
			if c.ID == m.followCar {
				m.MoveView(c.Location.X, c.Location.Y)
			}
		}
	}

	if math.IsNaN(m.xOffset) {
		m.xOffset = 0
	}
	if math.IsNaN(m.yOffset) {
		m.yOffset = 0
	}

	lim := offsetLimit * m.scale
	m.xOffset = clampFloat(m.xOffset, -lim, lim)
	m.yOffset = clampFloat(m.yOffset, -lim, lim)
}

// Reference point

func (m *Map) SetEnuRef(ref enu.LLH) {
	m.ref = ref
}

func (m *Map) EnuRef() enu.LLH {
	return m.ref
}

// OpenStreetMap layer

func (m *Map) DrawOpenStreetmap() bool        { return m.drawOsm }
func (m *Map) SetDrawOpenStreetmap(on bool)   { m.drawOsm = on && m.source != nil }
func (m *Map) OsmRes() float64                { return m.osmRes }
func (m *Map) SetOsmRes(res float64)          { m.osmRes = res }
func (m *Map) OsmMaxZoom() int                { return m.osmMaxZoom }
func (m *Map) SetOsmMaxZoom(zoom int)         { m.osmMaxZoom = zoom }
func (m *Map) OsmZoom() int                   { return m.osmZoom }
func (m *Map) DrawOsmStats() bool             { return m.drawOsmStats }
func (m *Map) SetDrawOsmStats(on bool)        { m.drawOsmStats = on }
func (m *Map) DrawGrid() bool                 { return m.drawGrid }
func (m *Map) SetDrawGrid(on bool)            { m.drawGrid = on }
func (m *Map) DrawRouteText() bool            { return m.drawRouteText }
func (m *Map) SetDrawRouteText(on bool)       { m.drawRouteText = on }
func (m *Map) DrawUwbTrace() bool             { return m.drawUwbTrace }
func (m *Map) SetDrawUwbTrace(on bool)        { m.drawUwbTrace = on }
func (m *Map) InfoTraceTextZoom() float64     { return m.infoTraceTextZoom }
func (m *Map) SetInfoTraceTextZoom(z float64) { m.infoTraceTextZoom = z }
