package entity

import "math"

// Frame is one still image captured at an integer-second offset of the video.
// ID is the second at which the frame was taken; it doubles as the ordering
// key. Frames are immutable once built and live only for the duration of a run.
type Frame struct {
	ID    int
	Image []byte
	MIME  string
}

// VideoMetadata holds the probe results needed before sampling can start.
type VideoMetadata struct {
	Duration float64
	Width    int
	Height   int
}

// TimeRange is a closed interval [Start, End] in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// Clamp clips the range to [0, duration]. An inverted range collapses both
// bounds to the same instant, mirroring how slider input is clamped upstream.
func (r TimeRange) Clamp(duration float64) TimeRange {
	c := r
	if c.Start < 0 {
		c.Start = 0
	}
	if c.End < 0 {
		c.End = 0
	}
	if duration > 0 {
		c.Start = math.Min(c.Start, duration)
		c.End = math.Min(c.End, duration)
	}
	if c.Start > c.End {
		c.End = c.Start
	}
	return c
}

// Seconds returns the integer seconds to sample, ascending:
// floor(Start) through the last integer <= End, at least one entry.
func (r TimeRange) Seconds() []int {
	first := int(math.Floor(r.Start))
	last := int(math.Floor(r.End))
	if last < first {
		last = first
	}
	secs := make([]int, 0, last-first+1)
	for s := first; s <= last; s++ {
		secs = append(secs, s)
	}
	return secs
}

// ExpectedFrames is the progress denominator: max(1, floor(End-Start)).
// It is a reporting estimate, not a cap on how many frames are captured.
func (r TimeRange) ExpectedFrames() int {
	n := int(math.Floor(r.End - r.Start))
	if n < 1 {
		return 1
	}
	return n
}
