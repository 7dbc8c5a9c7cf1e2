package model

import "time"

// SubtitleCue is one timed caption line.
type SubtitleCue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Scene is one entry in a Timeline: a window of the final render with its
// visual assets, narration, and optional subtitles. Scenes are ordered by
// Index and never overlap once a Timeline has been built by the compose
// stage.
type Scene struct {
	Index         int
	Start         time.Duration
	Duration      time.Duration
	Assets        []string
	NarrationPath string
	Subtitles     []SubtitleCue
}

// Timeline is the deterministic, frame-snapped sequence the render stage
// hands to the video composer.
type Timeline struct {
	Scenes []Scene
	FPS    int
}

// TotalDuration returns the timeline's end time, i.e. the last scene's end.
func (t Timeline) TotalDuration() time.Duration {
	var end time.Duration
	for _, s := range t.Scenes {
		if e := s.Start + s.Duration; e > end {
			end = e
		}
	}
	return end
}
