package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	xdraw "golang.org/x/image/draw"
)

const (
	glyphW = 7
	glyphH = 13
)

// fillRect blends c over r.
func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// fillPill draws a rectangle with rounded ends.
func fillPill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	radius := r.Dy() / 2
	fillRect(img, image.Rect(r.Min.X+radius, r.Min.Y, r.Max.X-radius, r.Max.Y), c)
	fillDisc(img, image.Pt(r.Min.X+radius, r.Min.Y+radius), radius, c)
	fillDisc(img, image.Pt(r.Max.X-radius, r.Min.Y+radius), radius, c)
}

func fillDisc(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		half := int(math.Sqrt(float64(radius*radius - dy*dy)))
		fillRect(img, image.Rect(center.X-half, center.Y+dy, center.X+half+1, center.Y+dy+1), c)
	}
}

// thickLine stamps squares of side width along the segment a-b.
func thickLine(img *image.RGBA, a, b image.Point, width int, c color.RGBA) {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	steps := int(math.Max(math.Abs(dx), math.Abs(dy)))
	if steps == 0 {
		steps = 1
	}
	half := width / 2
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := a.X + int(math.Round(dx*t))
		y := a.Y + int(math.Round(dy*t))
		draw.Draw(img, image.Rect(x-half, y-half, x-half+width, y-half+width).Intersect(img.Bounds()),
			image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// fillTriangle scan-fills the triangle p0 p1 p2.
func fillTriangle(img *image.RGBA, p0, p1, p2 image.Point, c color.RGBA) {
	minY := min(p0.Y, p1.Y, p2.Y)
	maxY := max(p0.Y, p1.Y, p2.Y)
	edges := [][2]image.Point{{p0, p1}, {p1, p2}, {p2, p0}}

	for y := minY; y <= maxY; y++ {
		left, right := math.MaxInt, math.MinInt
		for _, e := range edges {
			a, b := e[0], e[1]
			if a.Y == b.Y {
				if a.Y == y {
					left = min(left, a.X, b.X)
					right = max(right, a.X, b.X)
				}
				continue
			}
			if y < min(a.Y, b.Y) || y > max(a.Y, b.Y) {
				continue
			}
			x := a.X + (y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			left = min(left, x)
			right = max(right, x)
		}
		if left <= right {
			fillRect(img, image.Rect(left, y, right+1, y+1), c)
		}
	}
}

// textWidth returns the rendered width of s at the given integer scale.
func textWidth(s string, scale int) int {
	return len([]rune(s)) * glyphW * scale
}

// drawText renders s with its top-left corner at (x, y). Scales above 1 are
// rendered at native size and enlarged with nearest-neighbour so the bitmap
// font stays crisp.
func drawText(img *image.RGBA, x, y int, s string, c color.RGBA, scale int) {
	if s == "" {
		return
	}
	if scale <= 1 {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: basicfont.Face7x13,
			Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
		}
		d.DrawString(s)
		return
	}

	w := textWidth(s, 1)
	tmp := image.NewRGBA(image.Rect(0, 0, w, glyphH))
	d := &font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(0), Y: fixed.I(10)},
	}
	d.DrawString(s)

	dst := image.Rect(x, y, x+w*scale, y+glyphH*scale)
	xdraw.NearestNeighbor.Scale(img, dst, tmp, tmp.Bounds(), xdraw.Over, nil)
}
