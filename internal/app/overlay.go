package app

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/ptzfollow/internal/detector"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

var (
	colorBox      = color.RGBA{G: 255, A: 255}
	colorSmoothed = color.RGBA{R: 255, A: 255}
	colorZone     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// annotate draws the dead zone, the detection and the smoothed center, then
// keeps the frame as the latest JPEG.
func (a *App) annotate(frame *gocv.Mat, box *detector.Box, session tracking.Session) {
	geom := tracking.FrameGeometry{Width: frame.Cols(), Height: frame.Rows()}
	c := geom.Center()
	dz := a.ctrl.Config().DeadZone

	gocv.Rectangle(frame, image.Rect(c.X-dz, c.Y-dz, c.X+dz, c.Y+dz), colorZone, 1)
	if box != nil {
		gocv.Rectangle(frame, box.Rect(), colorBox, 2)
	}
	if session.HasSmoothed {
		gocv.Circle(frame, image.Pt(session.Smoothed.X, session.Smoothed.Y), 6, colorSmoothed, -1)
	}
	gocv.PutText(frame, session.State.String(), image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, colorZone, 2)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		a.logger.Debug("encode frame", "error", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.mu.Lock()
	a.jpeg = data
	a.jpegSeq++
	a.mu.Unlock()
}
