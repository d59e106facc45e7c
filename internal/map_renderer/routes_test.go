package map_renderer

import (
	"math"
	"testing"

	"osmview/internal/model"
)

func TestAddRouteTrimsEmptyTail(t *testing.T) {
	m := newTestMap(nil)
	m.AddRoute([]model.LocPoint{model.NewLocPoint(1, 1)})

	if m.RouteNum() != 1 {
		t.Fatalf("RouteNum = %d, want 1", m.RouteNum())
	}
	if r := m.Route(0); len(r) != 1 || r[0].X != 1 {
		t.Errorf("route 0 = %+v", r)
	}

	m.SetRouteNow(3)
	if m.RouteNum() != 4 {
		t.Fatalf("RouteNum = %d, want 4", m.RouteNum())
	}
	m.AddRoute([]model.LocPoint{model.NewLocPoint(2, 2)})
	if m.RouteNum() != 4 {
		t.Errorf("RouteNum = %d, want 4", m.RouteNum())
	}
	if r := m.Route(-1); len(r) != 1 || r[0].X != 2 {
		t.Errorf("current route = %+v, want the added one", r)
	}
}

func TestSetRouteNow(t *testing.T) {
	m := newTestMap(nil)
	m.AddRoutePoint(1, 0, 1, 0)

	m.SetRouteNow(3)
	if m.RouteNum() != 4 || m.RouteNow() != 3 {
		t.Fatalf("RouteNum = %d RouteNow = %d", m.RouteNum(), m.RouteNow())
	}

	m.SetRouteNow(1)
	if m.RouteNum() != 2 {
		t.Errorf("empty routes after the current one kept: %d", m.RouteNum())
	}

	m.SetRouteNow(-5)
	if m.RouteNow() != 0 || m.RouteNum() != 1 {
		t.Errorf("RouteNow = %d RouteNum = %d", m.RouteNow(), m.RouteNum())
	}
	if len(m.Route(-1)) != 1 {
		t.Error("route 0 lost its point")
	}
	if m.Route(10) != nil {
		t.Error("unknown route should be empty")
	}
}

func TestRemoveLastRoutePointOnEmptyRoute(t *testing.T) {
	m := newTestMap(nil)
	fired := 0
	m.SetHooks(Hooks{LastRoutePointRemoved: func(p model.LocPoint) {
		fired++
		if p.X != 0 || p.Y != 0 {
			t.Errorf("removed point = %+v", p)
		}
	}})

	m.RemoveLastRoutePoint()
	if fired != 1 {
		t.Errorf("hook fired %d times", fired)
	}
}

func TestClearRoutes(t *testing.T) {
	m := newTestMap(nil)
	m.AddRoutePoint(1, 0, 1, 0)
	m.AddRoute([]model.LocPoint{model.NewLocPoint(0, 1)})

	m.ClearRoute()
	if len(m.Route(0)) != 0 || len(m.Route(1)) != 1 {
		t.Errorf("ClearRoute touched other routes: %+v", m.Routes())
	}

	m.ClearAllRoutes()
	for i, r := range m.Routes() {
		if len(r) != 0 {
			t.Errorf("route %d not cleared", i)
		}
	}
}

func TestInfoTraces(t *testing.T) {
	m := newTestMap(nil)
	var changed []int
	m.SetHooks(Hooks{InfoTraceChanged: func(n int) { changed = append(changed, n) }})

	if got := m.SetNextEmptyOrCreateNewInfoTrace(); got != 0 {
		t.Errorf("first empty trace = %d, want 0", got)
	}
	if len(changed) != 0 {
		t.Error("hook fired without a change")
	}

	m.AddInfoPoint(model.NewLocPoint(0, 0))
	if got := m.SetNextEmptyOrCreateNewInfoTrace(); got != 1 {
		t.Errorf("new trace = %d, want 1", got)
	}
	if m.InfoTraceNum() != 2 || len(changed) != 1 || changed[0] != 1 {
		t.Errorf("InfoTraceNum = %d changed = %v", m.InfoTraceNum(), changed)
	}

	if m.InfoPointsInTrace(0) != 1 || m.InfoPointsInTrace(1) != 0 {
		t.Errorf("point counts %d, %d", m.InfoPointsInTrace(0), m.InfoPointsInTrace(1))
	}
	if m.InfoPointsInTrace(-1) != -1 || m.InfoPointsInTrace(5) != -1 {
		t.Error("unknown trace should report -1")
	}

	m.ClearAllInfoTraces()
	if m.InfoPointsInTrace(0) != 0 {
		t.Error("ClearAllInfoTraces kept points")
	}
}

func TestZoomInOnRoute(t *testing.T) {
	m := newTestMap(nil)
	m.AddRoute([]model.LocPoint{
		model.NewLocPoint(0, 0),
		model.NewLocPoint(10, 0),
		model.NewLocPoint(10, 5),
		model.NewLocPoint(0, 5),
	})

	m.ZoomInOnRoute(0, 0, 800, 600)

	if math.Abs(m.ScaleFactor()-0.08) > 1e-12 {
		t.Errorf("scale = %g, want 0.08", m.ScaleFactor())
	}
	x, y := m.Offset()
	if math.Abs(x+400) > 1e-9 || math.Abs(y+200) > 1e-9 {
		t.Errorf("offset = (%g, %g), want (-400, -200)", x, y)
	}

	// The box center maps to the widget center.
	cx, cy := m.MousePosRelative(400, 300)
	if math.Abs(cx-5000) > 1e-6 || math.Abs(cy-2500) > 1e-6 {
		t.Errorf("center = (%g, %g) mm", cx, cy)
	}
}

func TestZoomInOnSinglePoint(t *testing.T) {
	m := newTestMap(nil)
	p := model.NewLocPoint(3, 4)
	m.AddInfoPoint(p)

	m.ZoomInOnInfoTrace(-1, 0.1, 0, 0)

	if m.ScaleFactor() != DefaultScale {
		t.Errorf("scale changed to %g", m.ScaleFactor())
	}
	x, y := m.Offset()
	if math.IsNaN(x) || math.IsNaN(y) || math.Abs(x+300) > 1e-9 || math.Abs(y+400) > 1e-9 {
		t.Errorf("offset = (%g, %g), want (-300, -400)", x, y)
	}

	// Nothing to fit leaves the view alone.
	m.ZoomInOnInfoTrace(7, 0.1, 0, 0)
	if x2, y2 := m.Offset(); x2 != x || y2 != y {
		t.Error("empty trace moved the view")
	}
}

func TestUpdateTraces(t *testing.T) {
	m := newTestMap(nil)
	m.AddCar(model.NewCarInfo(1, ""))
	m.SetTraceCar(1)

	m.UpdateTraces()
	m.UpdateTraces()
	if car, _, _ := m.Traces(); len(car) != 1 {
		t.Fatalf("stationary car trace = %d points", len(car))
	}

	m.Car(1).Location.SetXY(1, 0)
	m.UpdateTraces()
	m.Car(1).Location.SetXY(1.01, 0)
	m.UpdateTraces()

	car, gps, uwb := m.Traces()
	if len(car) != 2 {
		t.Errorf("car trace = %d points, want 2", len(car))
	}
	if len(gps) != 1 || len(uwb) != 1 {
		t.Errorf("gps %d uwb %d, want 1 each", len(gps), len(uwb))
	}

	m.ClearTrace()
	if car, _, _ := m.Traces(); len(car) != 0 {
		t.Error("ClearTrace kept points")
	}
}

func TestTruncateTrace(t *testing.T) {
	var trace []model.LocPoint
	for i := 0; i < 10; i++ {
		trace = append(trace, model.NewLocPoint(float64(i), 0))
	}

	got := truncateTrace(trace, 4)
	if len(got) != 4 || got[0].X != 6 || got[3].X != 9 {
		t.Errorf("truncateTrace = %+v", got)
	}
	if len(truncateTrace(trace, 20)) != 10 {
		t.Error("short trace truncated")
	}
}
