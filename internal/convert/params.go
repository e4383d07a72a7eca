package convert

import "fmt"

// Default conversion settings used when a request omits a value.
const (
	DefaultFPS   = 10
	DefaultWidth = 320
)

// Params are the user-tunable conversion settings.
type Params struct {
	FPS   int `json:"fps" msgpack:"fps"`
	Width int `json:"width" msgpack:"width"`
}

// Limits bounds the values accepted for Params.
type Limits struct {
	MinFPS   int
	MaxFPS   int
	MinWidth int
	MaxWidth int
}

// DefaultLimits returns the ranges offered by the upload page sliders.
func DefaultLimits() Limits {
	return Limits{
		MinFPS:   1,
		MaxFPS:   30,
		MinWidth: 100,
		MaxWidth: 800,
	}
}

// Clamp forces p into the configured ranges. Out of range values are
// pulled to the nearest bound instead of being rejected.
func (l Limits) Clamp(p Params) Params {
	return Params{
		FPS:   clamp(p.FPS, l.MinFPS, l.MaxFPS),
		Width: clamp(p.Width, l.MinWidth, l.MaxWidth),
	}
}

// Validate reports whether the limits describe non-empty ranges.
func (l Limits) Validate() error {
	if l.MinFPS < 1 || l.MinFPS > l.MaxFPS {
		return fmt.Errorf("invalid fps range %d-%d", l.MinFPS, l.MaxFPS)
	}
	if l.MinWidth < 1 || l.MinWidth > l.MaxWidth {
		return fmt.Errorf("invalid width range %d-%d", l.MinWidth, l.MaxWidth)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
