package map_renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"

	"osmview/internal/enu"
	"osmview/internal/model"
	"osmview/internal/osm_client"
	"osmview/internal/tilemath"
)

var (
	colBlack      = color.RGBA{0, 0, 0, 255}
	colRed        = color.RGBA{255, 0, 0, 255}
	colDarkRed    = color.RGBA{128, 0, 0, 255}
	colGreen      = color.RGBA{0, 255, 0, 255}
	colDarkGreen  = color.RGBA{0, 128, 0, 255}
	colBlue       = color.RGBA{0, 0, 255, 255}
	colMagenta    = color.RGBA{255, 0, 255, 255}
	colYellow     = color.RGBA{255, 255, 0, 255}
	colDarkYellow = color.RGBA{128, 128, 0, 255}
	colGray       = color.RGBA{160, 160, 164, 255}
	colDarkGray   = color.RGBA{128, 128, 128, 255}
	colLightGray  = color.RGBA{192, 192, 192, 255}

	textColor = colBlack
)

const (
	hudOffset    = 250.0
	hudStart     = 30.0
	hudRowHeight = 20.0

	fontAscent = 11.0
	fontHeight = 13.0
)

// View describes the transform of the frame being painted. DrawTrans maps
// world millimeters to pixels.
type View struct {
	Width       int
	Height      int
	DrawTrans   gg.Matrix
	Scale       float64
	HighQuality bool
}

// Map transforms a world point in millimeters to pixels.
func (v View) Map(x, y float64) (float64, float64) {
	return v.DrawTrans.TransformPoint(x, y)
}

type frame struct {
	View

	tx, ty, rad float64

	stepGrid                   float64
	xStart, xEnd, yStart, yEnd float64

	cx, cy, viewW, viewH           float64
	vxStart, vxEnd, vyStart, vyEnd float64

	infoSegments int
	infoPoints   int
}

// applyDraw multiplies the world transform onto the context matrix.
func (f *frame) applyDraw(dc *gg.Context) {
	dc.Translate(f.tx, f.ty)
	dc.Scale(f.Scale, -f.Scale)
	dc.Rotate(f.rad)
}

func (m *Map) newFrame(width, height int, highQuality bool) *frame {
	s := m.scale
	w, h := float64(width), float64(height)

	f := &frame{
		tx:  w/2.0 + m.xOffset,
		ty:  h/2.0 - m.yOffset,
		rad: gg.Radians(m.rotation),
	}
	f.View = View{
		Width:       width,
		Height:      height,
		DrawTrans:   gg.Identity().Translate(f.tx, f.ty).Scale(s, -s).Rotate(f.rad),
		Scale:       s,
		HighQuality: highQuality,
	}

	step := 20.0 * math.Ceil(1.0/((s*10.0)/50.0))
	div := math.Round(math.Log10(step)) > math.Log10(step)
	step = math.Pow(10.0, math.Round(math.Log10(step)))
	if div {
		step /= 2.0
	}
	f.stepGrid = step

	f.xStart = -math.Ceil(w/step/s)*step - math.Ceil(m.xOffset/step/s)*step
	f.xEnd = math.Ceil(w/step/s)*step - math.Floor(m.xOffset/step/s)*step
	f.yStart = -math.Ceil(h/step/s)*step - math.Ceil(m.yOffset/step/s)*step
	f.yEnd = math.Ceil(h/step/s)*step - math.Floor(m.yOffset/step/s)*step

	f.cx = -m.xOffset / s / 1000.0
	f.cy = -m.yOffset / s / 1000.0
	f.viewW = w / s / 1000.0
	f.viewH = h / s / 1000.0

	f.vxStart = (f.cx - f.viewW/2.0) * 1000.0
	f.vyStart = (f.cy - f.viewH/2.0) * 1000.0
	f.vxEnd = (f.cx + f.viewW/2.0) * 1000.0
	f.vyEnd = (f.cy + f.viewH/2.0) * 1000.0

	return f
}

// Render paints the map into a new image.
func (m *Map) Render(width, height int, highQuality bool) image.Image {
	dc := gg.NewContext(width, height)
	m.Paint(dc, width, height, highQuality)
	return dc.Image()
}

// PrintPNG renders the map in high quality to a PNG file. Zero sizes use the
// widget size.
func (m *Map) PrintPNG(path string, width, height int) error {
	if width == 0 {
		width = m.width
	}
	if height == 0 {
		height = m.height
	}

	dc := gg.NewContext(width, height)
	m.Paint(dc, width, height, true)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save map image: %w", err)
	}

	m.logger.Info("Map image saved",
		zap.String("path", path),
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return nil
}

// Paint draws one frame. Tiles missing from the cache are drawn as
// placeholders and requested from the source while its queue has room.
func (m *Map) Paint(dc *gg.Context, width, height int, highQuality bool) {
	m.clampView()
	f := m.newFrame(width, height, highQuality)

	dc.Push()
	defer dc.Pop()
	dc.SetFontFace(basicfont.Face7x13)

	if m.drawOsm {
		m.paintTiles(dc, f)
	}

	dc.Identity()
	if m.drawGrid {
		m.paintGrid(dc, f)
	}

	m.visibleInfoPoints = m.visibleInfoPoints[:0]
	m.paintInfoTraces(dc, f)
	m.paintClosestInfo(dc, f)
	m.paintTraces(dc, f)
	m.paintRoutes(dc, f)

	for _, mod := range m.modules {
		dc.Push()
		mod.Paint(dc, f.View)
		dc.Pop()
		dc.Identity()
	}

	m.paintCars(dc, f)
	m.paintCopters(dc, f)
	m.paintAnchors(dc, f)
	m.paintHUD(dc, f)
}

func (m *Map) osmZoomFor(scale float64) int {
	z := math.Round(math.Log2(scale * m.osmRes * 100000000.0 * math.Cos(m.ref.Lat*math.Pi/180.0)))
	if math.IsNaN(z) || math.IsInf(z, 0) || z < 0 {
		return 0
	}
	if z > float64(m.osmMaxZoom) {
		return m.osmMaxZoom
	}
	return int(z)
}

func (m *Map) paintTiles(dc *gg.Context, f *frame) {
	zoom := m.osmZoomFor(f.Scale)
	m.osmZoom = zoom

	xt := tilemath.LongitudeToTileX(m.ref.Lon, zoom)
	yt := tilemath.LatitudeToTileY(m.ref.Lat, zoom)
	corner := enu.LLHToENU(m.ref, enu.LLH{
		Lat: tilemath.TileYToLatitude(yt, zoom),
		Lon: tilemath.TileXToLongitude(xt, zoom),
	})

	w := tilemath.TileGroundWidthMeters(m.ref.Lat, zoom)

	tOfsX := int(math.Ceil(-(f.cx - f.viewW/2.0) / w))
	tOfsY := int(math.Ceil((f.cy + f.viewH/2.0) / w))

	for j := 0; j < tileLoopLimit; j++ {
		for i := 0; i < tileLoopLimit; i++ {
			x := xt + i - tOfsX
			y := yt + j - tOfsY
			tsX := corner.X + w*float64(i) - float64(tOfsX)*w
			tsY := -corner.Y + w*float64(j) - float64(tOfsY)*w

			if tsX > f.cx+f.viewW/2.0 {
				break
			} else if tsY-w > -f.cy+f.viewH/2.0 {
				break
			}

			t, status := m.source.GetTile(zoom, x, y)
			drawTile(dc, f, t.Image, tsX*1000.0, tsY*1000.0, w*1000.0)

			if status == osm_client.Miss && !m.source.DownloadQueueFull() {
				m.source.StartDownload(zoom, x, y)
			}
		}
	}
}

// drawTile draws img as a size x size square at (x, y) in the north-down
// tile frame.
func drawTile(dc *gg.Context, f *frame, img image.Image, x, y, size float64) {
	if img == nil {
		return
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}

	dc.Push()
	dc.Identity()
	f.applyDraw(dc)
	dc.Scale(1, -1)
	dc.Translate(x, y)
	dc.Scale(size/float64(b.Dx()), size/float64(b.Dy()))
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	dc.Pop()
}

func (m *Map) paintGrid(dc *gg.Context, f *frame) {
	step := f.stepGrid

	for i := f.xStart; i < f.xEnd; i += step {
		if math.Abs(i) < 1e-3 {
			i = 0.0
		}

		col, width := colGray, 1.0
		if int(i/step)%2 == 0 {
			px, _ := f.Map(i, 0)
			dc.SetColor(textColor)
			drawTextRotated(dc, fmt.Sprintf("%.2f m", i/1000.0), px-5, float64(f.Height)-10)

			col = colBlue
			if math.Abs(i) < 1e-3 {
				col, width = colRed, 3.0
			}
		}

		x1, y1 := f.Map(i, f.yStart)
		x2, y2 := f.Map(i, f.yEnd)
		strokeLine(dc, x1, y1, x2, y2, col, width)
	}

	for i := f.yStart; i < f.yEnd; i += step {
		if math.Abs(i) < 1e-3 {
			i = 0.0
		}

		col, width := colGray, 1.0
		if int(i/step)%2 == 0 {
			_, py := f.Map(0, i)
			dc.SetColor(textColor)
			dc.DrawString(fmt.Sprintf("%.2f m", i/1000.0), 10, py-5)

			col = colBlue
			if math.Abs(i) < 1e-3 {
				col, width = colRed, 3.0
			}
		}

		x1, y1 := f.Map(f.xStart, i)
		x2, y2 := f.Map(f.xEnd, i)
		strokeLine(dc, x1, y1, x2, y2, col, width)
	}
}

func (m *Map) paintInfoTraces(dc *gg.Context, f *frame) {
	for n, trace := range m.infoTraces {
		last := 0
		for i := 1; i < len(trace); i++ {
			if trace[i].DistanceTo(trace[last])*f.Scale < infoMinDist {
				continue
			}

			a, b := pointMm(trace[last]), pointMm(trace[i])
			draw := pointWithinRect(a, f.vxStart, f.vxEnd, f.vyStart, f.vyEnd) ||
				pointWithinRect(b, f.vxStart, f.vxEnd, f.vyStart, f.vyEnd) ||
				segmentCrossesRect(a, b, f.vxStart, f.vxEnd, f.vyStart, f.vyEnd)

			if draw && trace[i].DrawLine {
				x1, y1 := f.Map(a.X, a.Y)
				x2, y2 := f.Map(b.X, b.Y)
				strokeLine(dc, x1, y1, x2, y2, colDarkGreen, 3.0)
				f.infoSegments++
			}

			last = i
		}

		var green, red, other []model.LocPoint
		for _, p := range trace {
			if n != m.infoTraceNow {
				p.Color = colGray
			}

			switch p.Color {
			case colGreen, colDarkGreen:
				green = append(green, p)
			case colRed, colDarkRed:
				red = append(red, p)
			default:
				other = append(other, p)
			}
		}

		f.infoPoints += m.drawInfoPoints(dc, f, green)
		f.infoPoints += m.drawInfoPoints(dc, f, other)
		f.infoPoints += m.drawInfoPoints(dc, f, red)
	}
}

// drawInfoPoints draws the points inside the view, skipping points closer
// than infoMinDist on screen to the previous drawn one.
func (m *Map) drawInfoPoints(dc *gg.Context, f *frame, pts []model.LocPoint) int {
	last := 0
	drawn := 0

	for i, ip := range pts {
		p := pointMm(ip)
		if !pointWithinRect(p, f.vxStart, f.vxEnd, f.vyStart, f.vyEnd) {
			continue
		}

		if drawn > 0 {
			if pts[i].DistanceTo(pts[last])*f.Scale < infoMinDist {
				continue
			}
			last = i
		}

		px, py := f.Map(p.X, p.Y)
		dc.DrawCircle(px, py, ip.Radius)
		dc.SetColor(ip.Color)
		dc.Fill()

		drawn++
		m.visibleInfoPoints = append(m.visibleInfoPoints, ip)

		if f.Scale > m.infoTraceTextZoom {
			tx, ty := f.Map(p.X+5.0/f.Scale, p.Y)
			dc.SetColor(textColor)
			drawTextBlock(dc, ip.Info, tx, ty-20)
		}
	}

	return drawn
}

func (m *Map) paintClosestInfo(dc *gg.Context, f *frame) {
	if m.closestInfo.Info == "" {
		return
	}

	p := pointMm(m.closestInfo)
	px, py := f.Map(p.X, p.Y)
	dc.DrawCircle(px, py, m.closestInfo.Radius)
	dc.SetColor(colGreen)
	dc.Fill()

	tx, ty := f.Map(p.X+5.0/f.Scale, p.Y)
	dc.SetColor(textColor)
	drawTextBlock(dc, m.closestInfo.Info, tx, ty-20)
}

func (m *Map) paintTraces(dc *gg.Context, f *frame) {
	strokePolyline(dc, f, m.carTrace, colRed, 5.0)
	strokePolyline(dc, f, m.carTraceGps, colMagenta, 2.5)
	if m.drawUwbTrace {
		strokePolyline(dc, f, m.carTraceUwb, colGreen, 2.5)
	}
}

func (m *Map) paintRoutes(dc *gg.Context, f *frame) {
	for rn, route := range m.routes {
		lineCol, fillCol := colDarkGray, colGray
		if rn == m.routeNow {
			lineCol, fillCol = colDarkYellow, colYellow
		}

		strokePolyline(dc, f, route, withAlpha(lineCol, 0.7), 5.0)

		penWidth := 4.0
		if f.HighQuality {
			penWidth = 3.0
		}

		for i, p := range route {
			pm := pointMm(p)
			px, py := f.Map(pm.X, pm.Y)

			dc.DrawCircle(px, py, 10.0)
			dc.SetColor(fillCol)
			dc.FillPreserve()
			dc.SetColor(lineCol)
			dc.SetLineWidth(penWidth)
			dc.Stroke()

			dc.SetColor(textColor)
			if rn == m.routeNow && m.drawRouteText {
				txt := fmt.Sprintf("P: %d\n%.1f km/h\n%s", i, p.Speed*3.6, model.FormatTime(p.Time))
				tx, ty := f.Map(pm.X+10.0/f.Scale, pm.Y)
				drawTextBlock(dc, txt, tx, ty-20)
			} else {
				dc.DrawStringAnchored(fmt.Sprintf("%d", rn), px, py, 0.5, 0.5)
			}
		}
	}
}

func (m *Map) paintCars(dc *gg.Context, f *frame) {
	for _, car := range m.cars {
		pos := car.Location
		carLen := car.Length * 1000.0
		carW := car.Width * 1000.0
		corner := car.CornerRadius * 1000.0

		x, y := pos.PointMm()
		xGps, yGps := car.LocationGps.PointMm()
		angle := pos.Yaw * 180.0 / math.Pi

		colWheels, colBumper, colAp := color.Color(colBlack), color.Color(colGreen), color.Color(car.Color)
		if car.ID != m.selectedCar {
			colWheels, colBumper, colAp = colDarkGray, colLightGray, colLightGray
		}

		dc.Push()
		f.applyDraw(dc)

		if pos.Sigma > 0 {
			dc.DrawCircle(x, y, pos.Sigma*1000.0)
			dc.SetColor(withAlpha(colRed, 0.2))
			dc.Fill()
		}

		dc.Push()
		dc.Translate(x, y)
		dc.Rotate(-pos.Yaw)
		bodyW := carW - carLen/20.0
		fillRounded(dc, -carLen/12.0, -carW/2.0, carLen/6.0, carW, corner/3.0, colWheels)
		fillRounded(dc, carLen-carLen/2.5, -carW/2.0, carLen/6.0, carW, corner/3.0, colWheels)
		fillRounded(dc, -carLen/6.0, -bodyW/2.0, carLen, bodyW, corner, colBumper)
		fillRounded(dc, -carLen/6.0, -bodyW/2.0, carLen-carLen/20.0, bodyW, corner, car.Color)
		dc.Pop()

		dc.DrawCircle(x, y, carW/15.0)
		dc.SetColor(colBlue)
		dc.Fill()

		dc.DrawCircle(xGps, yGps, carW/15.0)
		dc.SetColor(colMagenta)
		dc.Fill()

		if goal := car.ApGoal; goal.Radius > 0 {
			gx, gy := goal.PointMm()
			dc.SetLineWidth(3.0)
			dc.DrawCircle(gx, gy, 10.0/f.Scale)
			dc.SetColor(colMagenta)
			dc.FillPreserve()
			dc.SetColor(colAp)
			dc.Stroke()

			dc.DrawCircle(x, y, goal.Radius*1000.0)
			dc.Stroke()
		}

		dc.Pop()

		sol := ""
		if car.LocationGps.Info != "" {
			sol = "Sol: " + car.LocationGps.Info + "\n"
		}
		txt := fmt.Sprintf("%s\n%s(%.3f, %.3f, %.0f)\n%s",
			car.Name, sol, pos.X, pos.Y, angle, model.FormatTime(car.Time))

		tx, ty := f.Map(x+120.0+(carLen-190.0)*((math.Cos(pos.Yaw)+1.0)/2.0), y)
		dc.SetColor(textColor)
		drawTextBlock(dc, txt, tx, ty-20)
	}
}

func (m *Map) paintCopters(dc *gg.Context, f *frame) {
	for _, c := range m.copters {
		pos := c.Location
		x, y := pos.PointMm()
		xGps, yGps := c.LocationGps.PointMm()
		angle := pos.Yaw * 180.0 / math.Pi

		colPropMain, colPropOther, colAp := color.Color(colRed), color.Color(colGreen), color.Color(c.Color)
		if c.ID != m.selectedCar {
			colPropMain, colPropOther, colAp = colDarkGray, colLightGray, colLightGray
		}

		dc.Push()
		f.applyDraw(dc)
		dc.Translate(x, y)
		dc.Rotate(-pos.Yaw)

		fillRounded(dc, -20, -300, 40, 600, 10, c.Color)
		fillRounded(dc, -300, -20, 600, 40, 10, c.Color)

		dc.DrawCircle(275, 0, 130)
		dc.SetColor(withAlpha(colPropMain, 0.3))
		dc.Fill()
		dc.SetColor(withAlpha(colPropOther, 0.3))
		for _, p := range [][2]float64{{0, 275}, {0, -275}, {-275, 0}} {
			dc.DrawCircle(p[0], p[1], 130)
			dc.Fill()
		}

		if math.Abs(pos.Roll) > 1e-5 || math.Abs(pos.Pitch) > 1e-5 {
			dc.SetColor(colGreen)
			dc.SetLineWidth(30.0 * f.Scale)
			dc.DrawLine(0, 0, -pos.Pitch*800.0, -pos.Roll*800.0)
			dc.Stroke()
		}
		dc.Pop()

		dc.Push()
		f.applyDraw(dc)
		if goal := c.ApGoal; goal.Radius > 0 {
			gx, gy := goal.PointMm()
			dc.DrawCircle(gx, gy, 10.0/f.Scale)
			dc.SetColor(colAp)
			dc.SetLineWidth(2.0)
			dc.Stroke()
		}
		dc.DrawCircle(xGps, yGps, 335.0/15.0)
		dc.SetColor(colMagenta)
		dc.Fill()
		dc.Pop()

		txt := fmt.Sprintf("%s\n(%.3f, %.3f, %.0f)\n%s",
			c.Name, pos.X, pos.Y, angle, model.FormatTime(c.Time))
		tx, ty := f.Map(x+450.0, y)
		dc.SetColor(textColor)
		drawTextBlock(dc, txt, tx, ty-20)
	}
}

func (m *Map) paintAnchors(dc *gg.Context, f *frame) {
	for _, a := range m.anchors {
		x, y := a.PointMm()
		px, py := f.Map(x, y)

		fillRounded(dc, px-10.0, py-10.0, 20, 20, 10, colRed)

		txt := fmt.Sprintf("Anchor %d\nPos    : (%.3f, %.3f)\nHeight : %.2f m",
			a.ID, a.X, a.Y, a.Height)
		dc.SetColor(textColor)
		drawTextBlock(dc, txt, px+15.0, py-20.0)
	}
}

func (m *Map) paintHUD(dc *gg.Context, f *frame) {
	x := float64(f.Width) - hudOffset
	y := hudStart

	dc.SetColor(textColor)
	row := func(format string, args ...any) {
		dc.DrawString(fmt.Sprintf(format, args...), x, y)
		y += hudRowHeight
	}

	if m.drawGrid {
		res := f.stepGrid / 1000.0
		switch {
		case res >= 1000.0:
			row("Grid res: %.0f km", res/1000.0)
		case res >= 1.0:
			row("Grid res: %.0f m", res)
		default:
			row("Grid res: %.0f cm", res*100.0)
		}
	}

	row("Zoom: %.7f", f.Scale)

	if m.drawOsm {
		row("OSM zoom: %d", m.osmZoom)

		if m.drawOsmStats {
			st := m.source.Stats()
			row("DL Tiles: %d", st.TilesDownloaded)
			row("HDD Tiles: %d", st.HddTilesLoaded)
			row("RAM Tiles: %d", st.RamTilesLoaded)
		}

		row(" OpenStreetMap Contributors")
	}

	if m.interactionMode != InteractionModeDefault {
		row("IMode: %d", int(m.interactionMode))
	}

	if f.infoSegments > 0 {
		row("Info seg: %d", f.infoSegments)
	}
	if f.infoPoints > 0 {
		row("Info pts: %d", f.infoPoints)
	}

	if route := m.routes[m.routeNow]; len(route) > 0 {
		row("RP: %d", len(route))
		row("RLen: %.2f m", routeLength(route))
	}
}

func routeLength(route []model.LocPoint) float64 {
	l := 0.0
	for i := 1; i < len(route); i++ {
		l += route[i-1].DistanceTo(route[i])
	}
	return l
}

func withAlpha(c color.Color, a float64) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a * 255)}
}

func strokeLine(dc *gg.Context, x1, y1, x2, y2 float64, c color.Color, width float64) {
	dc.DrawLine(x1, y1, x2, y2)
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.Stroke()
}

// strokePolyline draws the segments between consecutive points in pixel
// space.
func strokePolyline(dc *gg.Context, f *frame, pts []model.LocPoint, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}

	for i, p := range pts {
		x, y := f.Map(p.PointMm())
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.Stroke()
}

func fillRounded(dc *gg.Context, x, y, w, h, r float64, fill color.Color) {
	dc.DrawRoundedRectangle(x, y, w, h, r)
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(textColor)
	dc.SetLineWidth(1)
	dc.Stroke()
}

// drawTextBlock draws multi-line text with its first line's top at top.
func drawTextBlock(dc *gg.Context, txt string, x, top float64) {
	for i, line := range strings.Split(txt, "\n") {
		dc.DrawString(line, x, top+fontAscent+float64(i)*fontHeight)
	}
}

func drawTextRotated(dc *gg.Context, txt string, x, y float64) {
	dc.Push()
	dc.RotateAbout(-math.Pi/2, x, y)
	dc.DrawString(txt, x, y)
	dc.Pop()
}
