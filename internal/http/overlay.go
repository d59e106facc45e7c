package http

import (
	"net/http"
	"strconv"
	"strings"

	"osmview/internal/map_renderer"
	"osmview/internal/model"
	"osmview/internal/osm_client"
)

// HandleCars lists cars on GET and inserts or replaces one on PUT.
func (h *Handlers) HandleCars(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var cars []model.CarInfo
		err := h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
			cars = m.Cars()
		})
		if err != nil {
			h.sessionError(w, err)
			return
		}
		if cars == nil {
			cars = []model.CarInfo{}
		}
		h.writeJSON(w, cars)

	case http.MethodPut:
		if !h.authorize(w, r) {
			return
		}

		car := model.NewCarInfo(0, "")
		car.Name = ""
		if !h.decodeJSON(w, r, &car) {
			return
		}
		if car.Name == "" {
			car.Name = model.NewCarInfo(car.ID, "").Name
		}

		err := h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
			m.SetCar(car)
		})
		if err != nil {
			h.sessionError(w, err)
			return
		}
		h.writeJSON(w, car)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleCarRoutes serves DELETE /api/cars/{id}.
func (h *Handlers) HandleCarRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorize(w, r) {
		return
	}

	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cars/"), "/"))
	if err != nil {
		http.Error(w, "Invalid car id", http.StatusBadRequest)
		return
	}

	var removed bool
	err = h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
		removed = m.RemoveCar(id)
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}
	if !removed {
		http.NotFound(w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type routesResponse struct {
	RouteNow int                `json:"route_now"`
	Routes   [][]model.LocPoint `json:"routes"`
}

func (h *Handlers) HandleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp routesResponse
	err := h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
		resp.RouteNow = m.RouteNow()
		resp.Routes = m.Routes()
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleRouteRoutes serves PUT /api/routes/{n}. Routes up to n are created
// as needed; the current route is left as it was.
func (h *Handlers) HandleRouteRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorize(w, r) {
		return
	}

	n, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/routes/"), "/"))
	if err != nil || n < 0 {
		http.Error(w, "Invalid route number", http.StatusBadRequest)
		return
	}

	var points []model.LocPoint
	if !h.decodeJSON(w, r, &points) {
		return
	}

	var count int
	err = h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
		now := m.RouteNow()
		m.SetRouteNow(n)
		m.SetRoute(points)
		m.SetRouteNow(now)
		count = m.RouteNum()
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}

	h.writeJSON(w, map[string]interface{}{"route": n, "points": len(points), "routes": count})
}

// HandleAnchors lists anchors on GET and replaces all of them on PUT.
func (h *Handlers) HandleAnchors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var anchors []model.LocPoint
		err := h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
			anchors = m.Anchors()
		})
		if err != nil {
			h.sessionError(w, err)
			return
		}
		if anchors == nil {
			anchors = []model.LocPoint{}
		}
		h.writeJSON(w, anchors)

	case http.MethodPut:
		if !h.authorize(w, r) {
			return
		}

		var anchors []model.LocPoint
		if !h.decodeJSON(w, r, &anchors) {
			return
		}

		err := h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
			m.ClearAnchors()
			for _, a := range anchors {
				m.AddAnchor(a)
			}
		})
		if err != nil {
			h.sessionError(w, err)
			return
		}
		h.writeJSON(w, map[string]interface{}{"anchors": len(anchors)})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
