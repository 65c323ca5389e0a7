package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/detector"

	xdraw "golang.org/x/image/draw"
)

// DefaultSize is the popup canvas used when Renderer.Size is zero.
var DefaultSize = image.Pt(600, 600)

// Feedback is what the overlay shows on top of the preview. The zero value
// renders the neutral loading state.
type Feedback struct {
	Status    detector.Status
	Message   string
	Countdown time.Duration
}

// FromResult builds overlay feedback from a detector result.
func FromResult(r detector.Result) Feedback {
	return Feedback{Status: r.Status, Message: r.Message}
}

var (
	colorOK        = color.RGBA{46, 160, 67, 230}
	colorSlouching = color.RGBA{218, 54, 51, 230}
	colorUncertain = color.RGBA{212, 160, 23, 230}
	colorLoading   = color.RGBA{90, 90, 90, 230}
	colorBG        = color.RGBA{18, 18, 18, 255}
	colorShade     = color.RGBA{0, 0, 0, 170}
	colorWhite     = color.RGBA{255, 255, 255, 255}
	colorPill      = color.RGBA{0, 0, 0, 140}
)

type style struct {
	banner   color.RGBA
	headline string
	glyph    func(img *image.RGBA, box image.Rectangle)
}

func styleFor(status detector.Status) style {
	switch status {
	case detector.StatusOK:
		return style{colorOK, "GOOD POSTURE", drawCheck}
	case detector.StatusSlouching:
		return style{colorSlouching, "BAD POSTURE", drawSiren}
	case detector.StatusUncertain:
		return style{colorUncertain, "UNSURE", drawWarning}
	default:
		return style{colorLoading, "ANALYZING...", drawHourglass}
	}
}

// Headline is the banner text for a status.
func Headline(status detector.Status) string {
	return styleFor(status).headline
}

// Renderer composes preview frames for the popup.
type Renderer struct {
	Size image.Point
}

func (r Renderer) size() image.Point {
	if r.Size.X <= 0 || r.Size.Y <= 0 {
		return DefaultSize
	}
	return r.Size
}

// Render returns a new frame of Renderer.Size with the feedback drawn over a
// letterboxed copy of frame. frame is never modified.
func (r Renderer) Render(frame camera.Frame, fb Feedback) camera.Frame {
	canvas := r.Letterbox(frame)
	img := canvas.Image

	b := img.Bounds()
	bannerH := max(56, b.Dy()/7)
	pad := bannerH / 6

	st := styleFor(fb.Status)
	fillRect(img, image.Rect(0, 0, b.Dx(), bannerH), st.banner)

	glyphBox := image.Rect(pad, pad, bannerH-pad, bannerH-pad)
	st.glyph(img, glyphBox)

	scale := max(1, (bannerH-2*pad)/(glyphH*2))
	textX := glyphBox.Max.X + pad
	drawText(img, textX, (bannerH-glyphH*scale)/2, st.headline, colorWhite, scale)

	if fb.Countdown > 0 {
		label := fmt.Sprintf("%.1fs", fb.Countdown.Seconds())
		pillW := textWidth(label, 1) + 2*pad + glyphH
		pillH := glyphH + pad
		pill := image.Rect(b.Dx()-pad-pillW, (bannerH-pillH)/2, b.Dx()-pad, (bannerH+pillH)/2)
		fillPill(img, pill, colorPill)
		drawText(img, pill.Min.X+(pillW-textWidth(label, 1))/2, pill.Min.Y+(pillH-glyphH)/2, label, colorWhite, 1)
	}

	msg := fb.Message
	if fb.Status == "" && msg == "" {
		msg = "Checking your posture..."
	}
	if msg != "" {
		msgScale := 1
		if b.Dx() >= 480 {
			msgScale = 2
		}
		lineH := glyphH*msgScale + pad/2
		maxChars := max(1, (b.Dx()-2*pad)/(glyphW*msgScale))
		lines := wrap(msg, maxChars, 2)

		boxH := len(lines)*lineH + pad
		fillRect(img, image.Rect(0, b.Dy()-boxH, b.Dx(), b.Dy()), colorShade)
		for i, line := range lines {
			drawText(img, pad, b.Dy()-boxH+pad/2+i*lineH, line, colorWhite, msgScale)
		}
	}

	return canvas
}

// Letterbox scales a copy of frame into the canvas, preserving aspect ratio.
// A zero frame yields a blank canvas.
func (r Renderer) Letterbox(frame camera.Frame) camera.Frame {
	size := r.size()
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBG), image.Point{}, draw.Src)

	if !frame.IsZero() && frame.Width > 0 && frame.Height > 0 {
		xdraw.ApproxBiLinear.Scale(img, fitRect(frame.Width, frame.Height, size), frame.Image, frame.Image.Bounds(), xdraw.Src, nil)
	}

	out := camera.NewFrame(img, frame.CapturedAt, frame.Seq)
	if out.CapturedAt.IsZero() {
		out.CapturedAt = time.Now()
	}
	return out
}

// fitRect centres a w x h rectangle scaled to fit inside size.
func fitRect(w, h int, size image.Point) image.Rectangle {
	sw, sh := size.X, size.X*h/w
	if sh > size.Y {
		sw, sh = size.Y*w/h, size.Y
	}
	x := (size.X - sw) / 2
	y := (size.Y - sh) / 2
	return image.Rect(x, y, x+sw, y+sh)
}

// wrap splits text into at most maxLines lines of at most width runes,
// ending with "..." if text was cut.
func wrap(text string, width, maxLines int) []string {
	var lines []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = nil
		}
	}

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			flush()
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > width {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()

	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	last := []rune(lines[maxLines-1])
	if len(last)+3 > width {
		last = last[:max(0, width-3)]
	}
	lines[maxLines-1] = string(last) + "..."
	return lines
}

func drawCheck(img *image.RGBA, box image.Rectangle) {
	w := max(3, box.Dx()/7)
	a := image.Pt(box.Min.X+box.Dx()/8, box.Min.Y+box.Dy()/2)
	m := image.Pt(box.Min.X+box.Dx()*2/5, box.Max.Y-box.Dy()/6)
	b := image.Pt(box.Max.X-box.Dx()/8, box.Min.Y+box.Dy()/6)
	thickLine(img, a, m, w, colorWhite)
	thickLine(img, m, b, w, colorWhite)
}

// drawSiren draws three alarm bars above a base.
func drawSiren(img *image.RGBA, box image.Rectangle) {
	barW := max(3, box.Dx()/6)
	gap := (box.Dx() - 3*barW) / 2
	heights := []int{box.Dy() * 2 / 3, box.Dy() - box.Dy()/6, box.Dy() * 2 / 3}
	base := box.Max.Y - box.Dy()/6
	for i, h := range heights {
		x := box.Min.X + i*(barW+gap)
		fillRect(img, image.Rect(x, base-h+box.Dy()/6, x+barW, base), colorWhite)
	}
	fillRect(img, image.Rect(box.Min.X, base, box.Max.X, box.Max.Y), colorWhite)
}

func drawWarning(img *image.RGBA, box image.Rectangle) {
	top := image.Pt(box.Min.X+box.Dx()/2, box.Min.Y)
	fillTriangle(img, top, image.Pt(box.Min.X, box.Max.Y), image.Pt(box.Max.X, box.Max.Y), colorWhite)

	barW := max(2, box.Dx()/9)
	cx := top.X - barW/2
	fillRect(img, image.Rect(cx, box.Min.Y+box.Dy()/3, cx+barW, box.Max.Y-box.Dy()/3), colorUncertain)
	fillRect(img, image.Rect(cx, box.Max.Y-box.Dy()/4, cx+barW, box.Max.Y-box.Dy()/4+barW), colorUncertain)
}

func drawHourglass(img *image.RGBA, box image.Rectangle) {
	mid := image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2)
	inset := box.Dx() / 6
	fillTriangle(img, image.Pt(box.Min.X+inset, box.Min.Y), image.Pt(box.Max.X-inset, box.Min.Y), mid, colorWhite)
	fillTriangle(img, mid, image.Pt(box.Min.X+inset, box.Max.Y), image.Pt(box.Max.X-inset, box.Max.Y), colorWhite)
}
