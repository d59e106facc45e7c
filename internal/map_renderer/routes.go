package map_renderer

import (
	"math"

	"osmview/internal/model"
)

const (
	carTraceLimit = 5000
	gpsTraceLimit = 1800
	uwbTraceLimit = 5000
)

// AddRoutePoint appends a point to the current route.
func (m *Map) AddRoutePoint(px, py, speed float64, time int32) {
	p := model.NewLocPoint(px, py)
	p.Speed = speed
	p.Time = time
	m.routes[m.routeNow] = append(m.routes[m.routeNow], p)
}

// Route returns route ind, or the current route when ind is negative. Unknown
// indices give an empty route.
func (m *Map) Route(ind int) []model.LocPoint {
	if ind < 0 {
		ind = m.routeNow
	}
	if ind >= len(m.routes) {
		return nil
	}
	return append([]model.LocPoint(nil), m.routes[ind]...)
}

func (m *Map) Routes() [][]model.LocPoint {
	out := make([][]model.LocPoint, len(m.routes))
	for i, r := range m.routes {
		out[i] = append([]model.LocPoint(nil), r...)
	}
	return out
}

// SetRoute replaces the current route.
func (m *Map) SetRoute(route []model.LocPoint) {
	m.routes[m.routeNow] = append([]model.LocPoint(nil), route...)
}

// AddRoute drops empty routes at the tail, never below the current route,
// and appends route.
func (m *Map) AddRoute(route []model.LocPoint) {
	for len(m.routes) > 0 && len(m.routes[len(m.routes)-1]) == 0 && m.routeNow < len(m.routes) {
		m.routes = m.routes[:len(m.routes)-1]
	}
	m.routes = append(m.routes, append([]model.LocPoint(nil), route...))
}

func (m *Map) RouteNum() int {
	return len(m.routes)
}

func (m *Map) ClearRoute() {
	m.routes[m.routeNow] = nil
}

func (m *Map) ClearAllRoutes() {
	for i := range m.routes {
		m.routes[i] = nil
	}
}

func (m *Map) RouteNow() int {
	return m.routeNow
}

// SetRouteNow selects the current route, creating empty routes up to it and
// dropping empty routes after it.
func (m *Map) SetRouteNow(n int) {
	if n < 0 {
		n = 0
	}
	m.routeNow = n
	for len(m.routes) < n+1 {
		m.routes = append(m.routes, nil)
	}
	for m.routeNow < len(m.routes)-1 && len(m.routes[len(m.routes)-1]) == 0 {
		m.routes = m.routes[:len(m.routes)-1]
	}
}

// RemoveLastRoutePoint drops the last point of the current route. The hook
// fires even for an empty route, with a default point.
func (m *Map) RemoveLastRoutePoint() {
	var pos model.LocPoint
	route := m.routes[m.routeNow]
	if len(route) > 0 {
		pos = route[len(route)-1]
		m.routes[m.routeNow] = route[:len(route)-1]
	} else {
		pos = model.NewLocPoint(0, 0)
	}

	if m.hooks.LastRoutePointRemoved != nil {
		m.hooks.LastRoutePointRemoved(pos)
	}
}

// Info traces

func (m *Map) AddInfoPoint(p model.LocPoint) {
	m.infoTraces[m.infoTraceNow] = append(m.infoTraces[m.infoTraceNow], p)
}

func (m *Map) ClearInfoTrace() {
	m.infoTraces[m.infoTraceNow] = nil
}

func (m *Map) ClearAllInfoTraces() {
	for i := range m.infoTraces {
		m.infoTraces[i] = nil
	}
}

func (m *Map) InfoTraceNum() int {
	return len(m.infoTraces)
}

// InfoPointsInTrace returns the point count of a trace, or -1 for an unknown
// trace.
func (m *Map) InfoPointsInTrace(trace int) int {
	if trace < 0 || trace >= len(m.infoTraces) {
		return -1
	}
	return len(m.infoTraces[trace])
}

func (m *Map) InfoTraceNow() int {
	return m.infoTraceNow
}

func (m *Map) SetInfoTraceNow(n int) {
	if n < 0 {
		n = 0
	}
	old := m.infoTraceNow
	m.infoTraceNow = n
	for len(m.infoTraces) < n+1 {
		m.infoTraces = append(m.infoTraces, nil)
	}

	if old != n && m.hooks.InfoTraceChanged != nil {
		m.hooks.InfoTraceChanged(n)
	}
}

// SetNextEmptyOrCreateNewInfoTrace selects the first empty info trace, or a
// new one if none is empty, and returns its index.
func (m *Map) SetNextEmptyOrCreateNewInfoTrace() int {
	next := len(m.infoTraces)
	for i, t := range m.infoTraces {
		if len(t) == 0 {
			next = i
			break
		}
	}
	m.SetInfoTraceNow(next)
	return next
}

// Vehicle traces

func (m *Map) ClearTrace() {
	m.carTrace = nil
	m.carTraceGps = nil
	m.carTraceUwb = nil
}

// Traces returns copies of the fused, GPS and UWB traces.
func (m *Map) Traces() (car, gps, uwb []model.LocPoint) {
	return append([]model.LocPoint(nil), m.carTrace...),
		append([]model.LocPoint(nil), m.carTraceGps...),
		append([]model.LocPoint(nil), m.carTraceUwb...)
}

func (m *Map) TraceMinSpaceCar() float64     { return m.traceMinSpaceCar }
func (m *Map) SetTraceMinSpaceCar(d float64) { m.traceMinSpaceCar = d }
func (m *Map) TraceMinSpaceGps() float64     { return m.traceMinSpaceGps }
func (m *Map) SetTraceMinSpaceGps(d float64) { m.traceMinSpaceGps = d }

// UpdateTraces records the traced vehicle's positions. Call it periodically.
func (m *Map) UpdateTraces() {
	if m.traceCar >= 0 {
		for _, c := range m.cars {
			if c.ID != m.traceCar {
				continue
			}
			m.carTrace = appendTrace(m.carTrace, c.Location, m.traceMinSpaceCar)
			m.carTraceGps = appendTrace(m.carTraceGps, c.LocationGps, m.traceMinSpaceGps)
			m.carTraceUwb = appendTrace(m.carTraceUwb, c.LocationUwb, m.traceMinSpaceCar)
		}

		for _, c := range m.copters {
			if c.ID != m.traceCar {
				continue
			}
			m.carTrace = appendTrace(m.carTrace, c.Location, m.traceMinSpaceCar)
			m.carTraceGps = appendTrace(m.carTraceGps, c.LocationGps, m.traceMinSpaceGps)
		}
	}

	m.carTrace = truncateTrace(m.carTrace, carTraceLimit)
	m.carTraceGps = truncateTrace(m.carTraceGps, gpsTraceLimit)
	m.carTraceUwb = truncateTrace(m.carTraceUwb, uwbTraceLimit)
}

func appendTrace(trace []model.LocPoint, p model.LocPoint, minSpace float64) []model.LocPoint {
	if len(trace) == 0 {
		trace = append(trace, p)
	}
	if trace[len(trace)-1].DistanceTo(p) > minSpace {
		trace = append(trace, p)
	}
	return trace
}

func truncateTrace(trace []model.LocPoint, limit int) []model.LocPoint {
	if len(trace) <= limit {
		return trace
	}
	return append([]model.LocPoint(nil), trace[len(trace)-limit:]...)
}

// Fitting the view

// ZoomInOnRoute fits route id, or all routes when id is negative, into a
// view of wWidth x wHeight pixels. Non-positive sizes use the widget size.
// margins is the extra fraction added around the bounding box.
func (m *Map) ZoomInOnRoute(id int, margins float64, wWidth, wHeight float64) {
	var pts []model.LocPoint
	if id >= 0 {
		pts = m.Route(id)
	} else {
		for _, r := range m.routes {
			pts = append(pts, r...)
		}
	}
	m.zoomInOn(pts, margins, wWidth, wHeight)
}

// ZoomInOnInfoTrace is ZoomInOnRoute for info traces.
func (m *Map) ZoomInOnInfoTrace(id int, margins float64, wWidth, wHeight float64) {
	var pts []model.LocPoint
	if id >= 0 {
		if id < len(m.infoTraces) {
			pts = m.infoTraces[id]
		}
	} else {
		for _, t := range m.infoTraces {
			pts = append(pts, t...)
		}
	}
	m.zoomInOn(pts, margins, wWidth, wHeight)
}

func (m *Map) zoomInOn(pts []model.LocPoint, margins float64, wWidth, wHeight float64) {
	if len(pts) == 0 {
		return
	}

	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		xMin = math.Min(xMin, p.X)
		xMax = math.Max(xMax, p.X)
		yMin = math.Min(yMin, p.Y)
		yMax = math.Max(yMax, p.Y)
	}

	if wWidth <= 0 || wHeight <= 0 {
		wWidth = float64(m.width)
		wHeight = float64(m.height)
	}

	width := xMax - xMin
	height := yMax - yMin
	if width <= 0 && height <= 0 {
		m.MoveView(xMin, yMin)
		return
	}

	xMax += width * margins * 0.5
	xMin -= width * margins * 0.5
	yMax += height * margins * 0.5
	yMin -= height * margins * 0.5
	width = xMax - xMin
	height = yMax - yMin

	scaleX := 1.0 / ((width * 1000.0) / wWidth)
	scaleY := 1.0 / ((height * 1000.0) / wHeight)

	m.scale = math.Min(scaleX, scaleY)
	m.xOffset = -(xMin + width/2.0) * m.scale * 1000.0
	m.yOffset = -(yMin + height/2.0) * m.scale * 1000.0
}
