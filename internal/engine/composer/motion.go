package composer

import (
	"fmt"
	"time"
)

// clipEffect is a Ken Burns zoom/pan effect applied to a still image clip,
// kept close to verbatim from the teacher's ffmpeg.go: only the output
// resolution and fps are generalized to come from model.RenderSpec instead
// of the teacher's hardcoded 2160x3840@30.
type clipEffect string

const (
	effectZoomIn        clipEffect = "zoom_in"
	effectZoomOut       clipEffect = "zoom_out"
	effectPanDown       clipEffect = "pan_down"
	effectPanUp         clipEffect = "pan_up"
	effectPanLeft       clipEffect = "pan_left"
	effectPanRight      clipEffect = "pan_right"
	effectZoomInPanUp   clipEffect = "zoom_in_pan_up"
	effectZoomInPanDown clipEffect = "zoom_in_pan_down"
	effectZoomInPanLeft clipEffect = "zoom_in_pan_left"
	effectZoomInPanRight clipEffect = "zoom_in_pan_right"
)

var allEffects = []clipEffect{
	effectZoomIn, effectZoomOut,
	effectPanDown, effectPanUp, effectPanLeft, effectPanRight,
	effectZoomInPanUp, effectZoomInPanDown, effectZoomInPanLeft, effectZoomInPanRight,
}

// Breathing pulse: a subtle zoom oscillation layered on top of the primary
// motion, giving a centered subject the illusion of gently breathing.
const (
	breathAmplitude = 0.03
	breathFrequency = 0.12
)

// buildMotionFilter constructs the ffmpeg -vf zoompan filter for effect
// over a clip of the given duration, snapped to fps and output resolution
// outW/outH (falls back to 1080x1920 if either is zero, guarding against a
// zero-value spec reaching this function directly in a test).
func buildMotionFilter(effect clipEffect, duration time.Duration, fps, outW, outH int) string {
	if fps <= 0 {
		fps = 30
	}
	if outW <= 0 || outH <= 0 {
		outW, outH = 1080, 1920
	}
	totalFrames := int(duration.Seconds()*float64(fps)) + fps*2
	if totalFrames < fps {
		totalFrames = fps
	}

	breathExpr := fmt.Sprintf("%.3f*sin(on*%.3f)", breathAmplitude, breathFrequency)

	var zExpr, xExpr, yExpr string
	switch effect {
	case effectZoomIn:
		zExpr = fmt.Sprintf("1.0+0.5*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	case effectZoomOut:
		zExpr = fmt.Sprintf("1.5-0.5*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	case effectPanDown:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*on/%d", totalFrames)
	case effectPanUp:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*(1-on/%d)", totalFrames)
	case effectPanRight:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"
	case effectPanLeft:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"
	case effectZoomInPanUp:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("max(0,(ih-ih/zoom)*(1-on/%d))", totalFrames)
	case effectZoomInPanDown:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("min(ih-ih/zoom,(ih-ih/zoom)*on/%d)", totalFrames)
	case effectZoomInPanRight:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = fmt.Sprintf("min(iw-iw/zoom,(iw-iw/zoom)*on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"
	case effectZoomInPanLeft:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = fmt.Sprintf("max(0,(iw-iw/zoom)*(1-on/%d))", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"
	default:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	return fmt.Sprintf("zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr, totalFrames, outW, outH, fps)
}
