package map_renderer

import (
	"math"

	"github.com/fogleman/gg"

	"osmview/internal/enu"
	"osmview/internal/model"
)

// InteractionMode forces a modifier state regardless of the keys held.
type InteractionMode int

const (
	InteractionModeDefault InteractionMode = iota
	InteractionModeCtrlDown
	InteractionModeShiftDown
	InteractionModeCtrlShiftDown
)

type Buttons uint8

const (
	LeftButton Buttons = 1 << iota
	RightButton
)

type Modifiers uint8

const (
	ShiftModifier Modifiers = 1 << iota
	ControlModifier
)

type Key int

const (
	KeyUp Key = iota + 1
	KeyDown
)

// MouseEvent is a pointer event in widget pixels. Buttons holds the buttons
// still down after the event, so a release no longer includes the released
// button.
type MouseEvent struct {
	X, Y      float64
	Buttons   Buttons
	Modifiers Modifiers
}

// WheelEvent carries the vertical wheel angle delta in eighths of a degree.
type WheelEvent struct {
	X, Y      float64
	Delta     float64
	Buttons   Buttons
	Modifiers Modifiers
}

type EventKind int

const (
	EventPress EventKind = iota
	EventRelease
	EventMove
	EventWheel
)

// ModuleEvent is what a Module sees of an input event.
type ModuleEvent struct {
	Kind       EventKind
	WidgetX    float64
	WidgetY    float64
	MapPos     model.LocPoint
	WheelDelta float64
	Ctrl       bool
	Shift      bool
	CtrlShift  bool
	Left       bool
	Right      bool
	Scale      float64
}

// Module is a map extension. It paints after the routes and sees every input
// event before the map; returning true consumes the event.
type Module interface {
	Paint(dc *gg.Context, v View)
	HandleMouse(e ModuleEvent) bool
}

func (m *Map) InteractionMode() InteractionMode {
	return m.interactionMode
}

func (m *Map) SetInteractionMode(mode InteractionMode) {
	m.interactionMode = mode
}

func (m *Map) AddModule(mod Module) {
	m.modules = append(m.modules, mod)
}

// RemoveModule removes every registration of mod.
func (m *Map) RemoveModule(mod Module) {
	kept := m.modules[:0]
	for _, x := range m.modules {
		if x != mod {
			kept = append(kept, x)
		}
	}
	m.modules = kept
}

func (m *Map) RemoveLastModule() {
	if len(m.modules) > 0 {
		m.modules = m.modules[:len(m.modules)-1]
	}
}

type modifierState struct {
	ctrl, shift, ctrlShift bool
}

func (m *Map) modifiers(mods Modifiers) modifierState {
	s := modifierState{
		ctrl:      mods == ControlModifier,
		shift:     mods == ShiftModifier,
		ctrlShift: mods == ControlModifier|ShiftModifier,
	}

	switch m.interactionMode {
	case InteractionModeCtrlDown:
		s = modifierState{ctrl: true}
	case InteractionModeShiftDown:
		s = modifierState{shift: true}
	case InteractionModeCtrlShiftDown:
		s = modifierState{ctrlShift: true}
	}
	return s
}

func (m *Map) dispatch(kind EventKind, x, y, delta float64, buttons Buttons, mods modifierState) bool {
	if len(m.modules) == 0 {
		return false
	}

	e := ModuleEvent{
		Kind:       kind,
		WidgetX:    x,
		WidgetY:    y,
		MapPos:     m.mousePosMap(x, y),
		WheelDelta: delta,
		Ctrl:       mods.ctrl,
		Shift:      mods.shift,
		CtrlShift:  mods.ctrlShift,
		Left:       buttons&LeftButton != 0,
		Right:      buttons&RightButton != 0,
		Scale:      m.scale,
	}

	for _, mod := range m.modules {
		if mod.HandleMouse(e) {
			return true
		}
	}
	return false
}

// MouseMove pans on a plain left drag and drags a selected route point or
// anchor.
func (m *Map) MouseMove(e MouseEvent) {
	mods := m.modifiers(e.Modifiers)
	if m.dispatch(EventMove, e.X, e.Y, 0, e.Buttons, mods) {
		return
	}

	if e.Buttons&LeftButton != 0 && !mods.ctrl && !mods.shift && !mods.ctrlShift {
		if m.mouseLastX < mouseNotLocked/10 {
			m.xOffset += e.X - m.mouseLastX
		}
		if m.mouseLastY < mouseNotLocked/10 {
			m.yOffset -= e.Y - m.mouseLastY
			m.offsetChanged()
		}
		m.mouseLastX = e.X
		m.mouseLastY = e.Y
	}

	pos := m.mousePosMap(e.X, e.Y)
	if m.routePointSelected >= 0 && m.routePointSelected < len(m.routes[m.routeNow]) {
		m.routes[m.routeNow][m.routePointSelected].SetXY(pos.X, pos.Y)
	}
	if m.anchorSelected >= 0 && m.anchorSelected < len(m.anchors) {
		m.anchors[m.anchorSelected].SetXY(pos.X, pos.Y)
	}

	m.updateClosestInfoPoint(e.X, e.Y)
}

// MousePress applies the editing action selected by the modifiers.
func (m *Map) MousePress(e MouseEvent) {
	mods := m.modifiers(e.Modifiers)
	if m.dispatch(EventPress, e.X, e.Y, 0, e.Buttons, mods) {
		return
	}

	left := e.Buttons&LeftButton != 0
	right := e.Buttons&RightButton != 0

	pos := m.mousePosMap(e.X, e.Y)
	pos.Speed = m.routePointSpeed
	pos.Time = m.routePointTime
	pos.ID = m.anchorID
	pos.Height = m.anchorHeight

	route := m.routes[m.routeNow]
	routeInd, routeDist := closestPoint(pos, route)
	anchorInd, anchorDist := closestPoint(pos, m.anchors)
	routeFound := routeDist >= 0 && routeDist*m.scale*1000.0 < pickRadiusPx
	anchorFound := anchorDist >= 0 && anchorDist*m.scale*1000.0 < pickRadiusPx

	switch {
	case mods.ctrl:
		if left {
			m.moveSelectedTo(pos.X, pos.Y)
		} else if right {
			if m.anchorMode {
				if anchorFound {
					m.anchors[anchorInd].ID = m.anchorID
					m.anchors[anchorInd].Height = m.anchorHeight
				}
			} else if routeFound {
				route[routeInd].Speed = m.routePointSpeed
				route[routeInd].Time = m.routePointTime
			}
		}

	case mods.shift:
		if m.anchorMode {
			if left {
				if anchorFound {
					m.anchorSelected = anchorInd
					m.anchors[anchorInd].SetXY(pos.X, pos.Y)
				} else {
					m.anchors = append(m.anchors, pos)
				}
			} else if right && anchorFound {
				m.anchors = append(m.anchors[:anchorInd], m.anchors[anchorInd+1:]...)
			}
			return
		}

		if left {
			if routeFound {
				m.routePointSelected = routeInd
				route[routeInd].SetXY(pos.X, pos.Y)
			} else if len(route) < 2 || route[len(route)-1].DistanceTo(pos) < route[0].DistanceTo(pos) {
				m.routes[m.routeNow] = append(route, pos)
				if m.hooks.RoutePointAdded != nil {
					m.hooks.RoutePointAdded(pos)
				}
			} else {
				m.routes[m.routeNow] = append([]model.LocPoint{pos}, route...)
			}
		} else if right {
			if routeFound {
				m.routes[m.routeNow] = append(route[:routeInd], route[routeInd+1:]...)
			} else {
				m.RemoveLastRoutePoint()
			}
		}

	case mods.ctrlShift:
		if left {
			x, y := m.MousePosRelative(e.X, e.Y)
			llh := enu.ENUToLLH(m.ref, enu.Vec3{X: x / 1000.0, Y: y / 1000.0})
			m.ref = enu.LLH{Lat: llh.Lat, Lon: llh.Lon, Height: 0}
		}

	default:
		if left && m.closestInfo.Info != "" && m.hooks.InfoPointClicked != nil {
			m.hooks.InfoPointClicked(m.closestInfo)
		}
	}
}

func (m *Map) moveSelectedTo(x, y float64) {
	if m.selectedCar < 0 {
		return
	}

	for i := range m.cars {
		if m.cars[i].ID == m.selectedCar {
			m.cars[i].Location.SetXY(x, y)
			m.posSet(m.cars[i].Location)
		}
	}
	for i := range m.copters {
		if m.copters[i].ID == m.selectedCar {
			m.copters[i].Location.SetXY(x, y)
			m.posSet(m.copters[i].Location)
		}
	}
}

// MouseRelease ends drags once the left button is up.
func (m *Map) MouseRelease(e MouseEvent) {
	mods := m.modifiers(e.Modifiers)
	if m.dispatch(EventRelease, e.X, e.Y, 0, e.Buttons, mods) {
		return
	}

	if e.Buttons&LeftButton == 0 {
		m.mouseLastX = mouseNotLocked
		m.mouseLastY = mouseNotLocked
		m.routePointSelected = -1
		m.anchorSelected = -1
	}
}

// Wheel zooms around the view center, or with ctrl held rotates the selected
// vehicle.
func (m *Map) Wheel(e WheelEvent) {
	mods := m.modifiers(e.Modifiers)
	if m.dispatch(EventWheel, e.X, e.Y, e.Delta, e.Buttons, mods) {
		return
	}

	if mods.ctrl && m.selectedCar >= 0 {
		for i := range m.cars {
			if m.cars[i].ID == m.selectedCar {
				loc := &m.cars[i].Location
				loc.Yaw = normalizeAngleRad(loc.Yaw + e.Delta*0.0005)
				m.posSet(*loc)
			}
		}
		for i := range m.copters {
			if m.copters[i].ID == m.selectedCar {
				loc := &m.copters[i].Location
				loc.Yaw = normalizeAngleRad(loc.Yaw + e.Delta*0.0005)
				m.posSet(*loc)
			}
		}
	} else {
		diff := clampFloat(e.Delta/600.0, -0.8, 0.8)
		m.scale += m.scale * diff
		m.xOffset += m.xOffset * diff
		m.yOffset += m.yOffset * diff

		if m.hooks.ScaleChanged != nil {
			m.hooks.ScaleChanged(m.scale)
		}
		m.offsetChanged()
	}

	m.updateClosestInfoPoint(e.X, e.Y)
}

// Pinch scales the view by factor. Factors that are not positive and
// finite are ignored.
func (m *Map) Pinch(factor float64) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return
	}
	m.scale *= factor
	m.xOffset *= factor
	m.yOffset *= factor
}

// KeyPress maps the arrow keys to wheel steps. It reports whether the key
// was handled.
func (m *Map) KeyPress(k Key, mods Modifiers) bool {
	switch k {
	case KeyUp:
		m.Wheel(WheelEvent{Delta: 120, Modifiers: mods})
	case KeyDown:
		m.Wheel(WheelEvent{Delta: -120, Modifiers: mods})
	default:
		return false
	}
	return true
}

// updateClosestInfoPoint tracks the info point drawn nearest to the cursor
// in the last frame.
func (m *Map) updateClosestInfoPoint(px, py float64) {
	mp := m.mousePosMap(px, py)
	distMin := math.Inf(1)
	var closest model.LocPoint

	for _, ip := range m.visibleInfoPoints {
		if d := mp.DistanceTo(ip); d < distMin {
			distMin = d
			closest = ip
		}
	}

	if distMin*m.scale < infoMinDist {
		m.closestInfo = closest
	} else {
		m.closestInfo.Info = ""
	}
}

// ClosestInfoPoint returns the highlighted info point, if any.
func (m *Map) ClosestInfoPoint() (model.LocPoint, bool) {
	return m.closestInfo, m.closestInfo.Info != ""
}

func (m *Map) posSet(pos model.LocPoint) {
	if m.hooks.PosSet != nil {
		m.hooks.PosSet(m.selectedCar, pos)
	}
}

func (m *Map) offsetChanged() {
	if m.hooks.OffsetChanged != nil {
		m.hooks.OffsetChanged(m.xOffset, m.yOffset)
	}
}
