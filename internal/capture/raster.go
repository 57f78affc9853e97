package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/vector"
)

// Default signature surface size in pixels.
const (
	SurfaceWidth  = 300
	SurfaceHeight = 120
)

const (
	strokeWidth = 2
	capSides    = 12
)

var (
	background = image.NewUniform(color.White)
	ink        = image.NewUniform(color.Black)
)

// Raster is a Surface backed by an RGBA image: opaque white background,
// black strokes with round caps and joins.
type Raster struct {
	img  *image.RGBA
	z    *vector.Rasterizer
	last Point
	open bool
}

// NewRaster returns a w×h raster surface.
func NewRaster(w, h int) *Raster {
	r := &Raster{
		img: image.NewRGBA(image.Rect(0, 0, w, h)),
		z:   vector.NewRasterizer(w, h),
	}
	r.Reset()
	return r
}

func (r *Raster) Reset() {
	draw.Draw(r.img, r.img.Bounds(), background, image.Point{}, draw.Src)
	r.open = false
}

func (r *Raster) BeginStroke(p Point) {
	r.last = r.clamp(p)
	r.open = true
}

func (r *Raster) ExtendStroke(p Point) {
	if !r.open {
		r.BeginStroke(p)
		return
	}
	p = r.clamp(p)
	r.segment(r.last, p)
	r.last = p
}

func (r *Raster) CommitStroke() {
	r.open = false
}

// Encode returns the surface as a PNG data URL. The same pixels always
// encode to the same string.
func (r *Raster) Encode() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.img); err != nil {
		return "", fmt.Errorf("capture: png encode: %w", err)
	}
	return DataURL("image/png", buf.Bytes()), nil
}

// segment draws a line of strokeWidth from a to b with round ends. Each
// shape is filled in its own pass so windings never cancel.
func (r *Raster) segment(a, b Point) {
	const hw = strokeWidth / 2.0
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if l := math.Hypot(dx, dy); l > 0 {
		nx, ny := float32(-dy/l*hw), float32(dx/l*hw)
		r.fill([]Point{
			{a.X + nx, a.Y + ny},
			{b.X + nx, b.Y + ny},
			{b.X - nx, b.Y - ny},
			{a.X - nx, a.Y - ny},
		})
	}
	r.disc(a, hw)
	r.disc(b, hw)
}

func (r *Raster) disc(c Point, radius float64) {
	pts := make([]Point, capSides)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / capSides
		pts[i] = Point{
			X: c.X + float32(radius*math.Cos(theta)),
			Y: c.Y + float32(radius*math.Sin(theta)),
		}
	}
	r.fill(pts)
}

// fill rasterizes poly within its bounding rectangle only, so the cost of a
// shape follows its size rather than the surface's.
func (r *Raster) fill(poly []Point) {
	b := bounds(poly).Intersect(r.img.Bounds())
	if b.Empty() {
		return
	}
	ox, oy := float32(b.Min.X), float32(b.Min.Y)
	r.z.Reset(b.Dx(), b.Dy())
	r.z.DrawOp = draw.Over
	r.z.MoveTo(poly[0].X-ox, poly[0].Y-oy)
	for _, p := range poly[1:] {
		r.z.LineTo(p.X-ox, p.Y-oy)
	}
	r.z.ClosePath()
	r.z.Draw(r.img, b, ink, image.Point{})
}

func bounds(poly []Point) image.Rectangle {
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := minX, minY
	for _, p := range poly[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
		int(math.Ceil(float64(maxX))), int(math.Ceil(float64(maxY))),
	)
}

// clamp keeps p far enough inside the surface that a round cap stays within
// bounds.
func (r *Raster) clamp(p Point) Point {
	const margin = strokeWidth / 2.0
	b := r.img.Bounds()
	maxX, maxY := float32(b.Dx())-margin, float32(b.Dy())-margin
	p.X = float32(math.Max(margin, math.Min(float64(maxX), float64(p.X))))
	p.Y = float32(math.Max(margin, math.Min(float64(maxY), float64(p.Y))))
	return p
}
