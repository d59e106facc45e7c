package map_renderer

import (
	"math"
	"testing"

	"osmview/internal/model"
)

// At the default view a pixel is 10 mm and the widget center is the origin.
func TestMousePosRelative(t *testing.T) {
	m := newTestMap(nil)

	tests := []struct {
		px, py float64
		x, y   float64
	}{
		{400, 300, 0, 0},
		{500, 300, 1000, 0},
		{400, 200, 0, 1000},
		{300, 400, -1000, -1000},
	}
	for _, tt := range tests {
		x, y := m.MousePosRelative(tt.px, tt.py)
		if math.Abs(x-tt.x) > 1e-9 || math.Abs(y-tt.y) > 1e-9 {
			t.Errorf("MousePosRelative(%g, %g) = (%g, %g), want (%g, %g)", tt.px, tt.py, x, y, tt.x, tt.y)
		}
	}
}

func TestDragPans(t *testing.T) {
	m := newTestMap(nil)
	var offsets int
	m.SetHooks(Hooks{OffsetChanged: func(x, y float64) { offsets++ }})

	m.MouseMove(MouseEvent{X: 100, Y: 100, Buttons: LeftButton})
	m.MouseMove(MouseEvent{X: 130, Y: 90, Buttons: LeftButton})

	x, y := m.Offset()
	if x != 30 || y != 10 {
		t.Errorf("offset = (%g, %g), want (30, 10)", x, y)
	}
	if offsets != 1 {
		t.Errorf("OffsetChanged fired %d times", offsets)
	}

	m.MouseRelease(MouseEvent{X: 130, Y: 90})
	m.MouseMove(MouseEvent{X: 500, Y: 500, Buttons: LeftButton})
	if x2, y2 := m.Offset(); x2 != x || y2 != y {
		t.Error("first move after release should not pan")
	}
}

func TestShiftClickEditsRoute(t *testing.T) {
	m := newTestMap(nil)
	var added []model.LocPoint
	m.SetHooks(Hooks{RoutePointAdded: func(p model.LocPoint) { added = append(added, p) }})

	click := func(px, py float64, b Buttons) {
		m.MousePress(MouseEvent{X: px, Y: py, Buttons: b, Modifiers: ShiftModifier})
		m.MouseRelease(MouseEvent{X: px, Y: py, Modifiers: ShiftModifier})
	}

	click(400, 300, LeftButton) // (0, 0)
	click(500, 300, LeftButton) // (1, 0)
	if len(added) != 2 || m.Route(-1)[1].X != 1 {
		t.Fatalf("route = %+v", m.Route(-1))
	}
	if added[0].Speed != 1.0 {
		t.Errorf("new point speed = %g, want the route point speed", added[0].Speed)
	}

	// Closer to the first point than the last: prepended without a hook.
	click(350, 300, LeftButton)
	r := m.Route(-1)
	if len(r) != 3 || r[0].X != -0.5 || len(added) != 2 {
		t.Fatalf("prepend failed: %+v", r)
	}

	// Within the pick radius of (1, 0): selects and drags it.
	m.MousePress(MouseEvent{X: 505, Y: 300, Buttons: LeftButton, Modifiers: ShiftModifier})
	m.MouseMove(MouseEvent{X: 600, Y: 300, Buttons: LeftButton, Modifiers: ShiftModifier})
	m.MouseRelease(MouseEvent{X: 600, Y: 300, Modifiers: ShiftModifier})
	r = m.Route(-1)
	if len(r) != 3 || r[2].X != 2 {
		t.Fatalf("drag failed: %+v", r)
	}

	// Right click on a point removes it.
	click(400, 300, RightButton)
	if r = m.Route(-1); len(r) != 2 {
		t.Fatalf("remove failed: %+v", r)
	}

	// Right click away from every point removes the last one.
	var removed []model.LocPoint
	m.SetHooks(Hooks{LastRoutePointRemoved: func(p model.LocPoint) { removed = append(removed, p) }})
	click(100, 100, RightButton)
	if r = m.Route(-1); len(r) != 1 || len(removed) != 1 || removed[0].X != 2 {
		t.Errorf("remove last failed: route %+v removed %+v", r, removed)
	}
}

func TestInteractionModeOverridesModifiers(t *testing.T) {
	m := newTestMap(nil)
	m.SetInteractionMode(InteractionModeShiftDown)

	m.MousePress(MouseEvent{X: 400, Y: 300, Buttons: LeftButton})
	if len(m.Route(-1)) != 1 {
		t.Error("shift mode should add a route point without modifiers")
	}

	// A plain drag in shift mode does not pan.
	m.MouseMove(MouseEvent{X: 10, Y: 10, Buttons: LeftButton})
	m.MouseMove(MouseEvent{X: 20, Y: 20, Buttons: LeftButton})
	if x, y := m.Offset(); x != 0 || y != 0 {
		t.Errorf("offset = (%g, %g)", x, y)
	}
}

func TestAnchorMode(t *testing.T) {
	m := newTestMap(nil)
	m.SetAnchorMode(true)
	m.SetAnchorID(7)
	m.SetAnchorHeight(2.5)

	m.MousePress(MouseEvent{X: 400, Y: 300, Buttons: LeftButton, Modifiers: ShiftModifier})
	a := m.Anchors()
	if len(a) != 1 || a[0].ID != 7 || a[0].Height != 2.5 {
		t.Fatalf("anchors = %+v", a)
	}
	if len(m.Route(-1)) != 0 {
		t.Error("anchor mode edited the route")
	}

	m.SetAnchorID(9)
	m.MousePress(MouseEvent{X: 402, Y: 300, Buttons: RightButton, Modifiers: ControlModifier})
	if m.Anchor(9) == nil {
		t.Error("ctrl+right did not update the anchor id")
	}

	m.MousePress(MouseEvent{X: 402, Y: 300, Buttons: RightButton, Modifiers: ShiftModifier})
	if len(m.Anchors()) != 0 {
		t.Error("shift+right did not remove the anchor")
	}
}

func TestCtrlClickMovesSelectedCar(t *testing.T) {
	m := newTestMap(nil)
	m.AddCar(model.NewCarInfo(3, "rover"))
	m.SetSelectedCar(3)

	var gotID int
	var gotPos model.LocPoint
	m.SetHooks(Hooks{PosSet: func(id int, p model.LocPoint) { gotID, gotPos = id, p }})

	m.MousePress(MouseEvent{X: 500, Y: 200, Buttons: LeftButton, Modifiers: ControlModifier})

	loc := m.Car(3).Location
	if loc.X != 1 || loc.Y != 1 {
		t.Errorf("car at (%g, %g), want (1, 1)", loc.X, loc.Y)
	}
	if gotID != 3 || gotPos.X != 1 {
		t.Errorf("PosSet(%d, %+v)", gotID, gotPos)
	}
}

func TestCtrlRightSetsRoutePointSpeed(t *testing.T) {
	m := newTestMap(nil)
	m.AddRoutePoint(0, 0, 1, 0)
	m.SetRoutePointSpeed(3)
	m.SetRoutePointTime(5000)

	m.MousePress(MouseEvent{X: 401, Y: 300, Buttons: RightButton, Modifiers: ControlModifier})

	p := m.Route(-1)[0]
	if p.Speed != 3 || p.Time != 5000 {
		t.Errorf("point = %+v", p)
	}
}

func TestWheelZoom(t *testing.T) {
	m := newTestMap(nil)
	m.SetXOffset(100)
	var scales []float64
	m.SetHooks(Hooks{ScaleChanged: func(s float64) { scales = append(scales, s) }})

	m.Wheel(WheelEvent{Delta: 120})
	if math.Abs(m.ScaleFactor()-0.12) > 1e-12 {
		t.Errorf("scale = %g, want 0.12", m.ScaleFactor())
	}
	if x, _ := m.Offset(); math.Abs(x-120) > 1e-9 {
		t.Errorf("x offset = %g, want 120", x)
	}

	// Large deltas are limited to a factor of 0.8.
	m.Wheel(WheelEvent{Delta: -6000})
	if math.Abs(m.ScaleFactor()-0.024) > 1e-12 {
		t.Errorf("scale = %g, want 0.024", m.ScaleFactor())
	}

	if len(scales) != 2 {
		t.Errorf("ScaleChanged fired %d times", len(scales))
	}
}

func TestCtrlWheelRotatesSelectedCar(t *testing.T) {
	m := newTestMap(nil)
	m.AddCar(model.NewCarInfo(1, ""))
	m.SetSelectedCar(1)

	m.Wheel(WheelEvent{Delta: -120, Modifiers: ControlModifier})

	want := 2*math.Pi - 0.06
	if yaw := m.Car(1).Location.Yaw; math.Abs(yaw-want) > 1e-12 {
		t.Errorf("yaw = %g, want %g", yaw, want)
	}
	if m.ScaleFactor() != DefaultScale {
		t.Error("ctrl wheel with a selected car should not zoom")
	}
}

func TestKeyPressZooms(t *testing.T) {
	m := newTestMap(nil)

	if !m.KeyPress(KeyUp, 0) {
		t.Fatal("KeyUp not handled")
	}
	if math.Abs(m.ScaleFactor()-0.12) > 1e-12 {
		t.Errorf("scale = %g", m.ScaleFactor())
	}
	m.KeyPress(KeyDown, 0)
	if math.Abs(m.ScaleFactor()-0.096) > 1e-12 {
		t.Errorf("scale = %g", m.ScaleFactor())
	}
	if m.KeyPress(Key(99), 0) {
		t.Error("unknown key reported as handled")
	}
}

func TestPinch(t *testing.T) {
	m := newTestMap(nil)
	m.SetYOffset(50)
	m.Pinch(2)
	if m.ScaleFactor() != 0.2 {
		t.Errorf("scale = %g", m.ScaleFactor())
	}
	if _, y := m.Offset(); y != 100 {
		t.Errorf("y offset = %g", y)
	}
}

func TestCtrlShiftClickMovesReference(t *testing.T) {
	m := newTestMap(nil)
	before := m.EnuRef()

	// 100 m east of the origin.
	m.SetScaleFactor(0.001)
	m.MousePress(MouseEvent{X: 500, Y: 300, Buttons: LeftButton, Modifiers: ControlModifier | ShiftModifier})

	after := m.EnuRef()
	if after.Height != 0 {
		t.Errorf("height = %g, want 0", after.Height)
	}
	if after.Lon <= before.Lon || math.Abs(after.Lat-before.Lat) > 1e-4 {
		t.Errorf("reference moved from %+v to %+v", before, after)
	}
}

func TestInfoPointClicked(t *testing.T) {
	m := newTestMap(nil)
	p := model.NewLocPoint(1, 0)
	p.Info = "sample"
	m.AddInfoPoint(p)

	var clicked []model.LocPoint
	m.SetHooks(Hooks{InfoPointClicked: func(p model.LocPoint) { clicked = append(clicked, p) }})

	paint(m)
	m.MouseMove(MouseEvent{X: 500, Y: 300})
	if cp, ok := m.ClosestInfoPoint(); !ok || cp.Info != "sample" {
		t.Fatalf("closest info point = %+v, %v", cp, ok)
	}

	m.MousePress(MouseEvent{X: 500, Y: 300, Buttons: LeftButton})
	if len(clicked) != 1 || clicked[0].Info != "sample" {
		t.Errorf("clicked = %+v", clicked)
	}

	m.MouseMove(MouseEvent{X: 100, Y: 100})
	if _, ok := m.ClosestInfoPoint(); ok {
		t.Error("info point still highlighted far from the cursor")
	}
}

func TestModuleConsumesEvents(t *testing.T) {
	m := newTestMap(nil)
	mod := &recordingModule{consume: true}
	m.AddModule(mod)

	m.MousePress(MouseEvent{X: 500, Y: 300, Buttons: LeftButton, Modifiers: ShiftModifier})
	if len(m.Route(-1)) != 0 {
		t.Error("consumed press reached the map")
	}
	if len(mod.events) != 1 {
		t.Fatalf("module saw %d events", len(mod.events))
	}
	e := mod.events[0]
	if e.Kind != EventPress || !e.Shift || !e.Left || e.MapPos.X != 1 {
		t.Errorf("event = %+v", e)
	}

	mod.consume = false
	m.Wheel(WheelEvent{Delta: 120})
	if len(mod.events) != 2 || mod.events[1].WheelDelta != 120 {
		t.Errorf("wheel event = %+v", mod.events)
	}
	if m.ScaleFactor() == DefaultScale {
		t.Error("unconsumed wheel did not zoom")
	}

	m.RemoveLastModule()
	m.MousePress(MouseEvent{X: 500, Y: 300, Buttons: LeftButton, Modifiers: ShiftModifier})
	if len(m.Route(-1)) != 1 {
		t.Error("press after module removal did not reach the map")
	}
}
