// Package costmodel maps physical edge properties to an abstract traversal
// cost in seconds. The constant tables below are the canonical ones: every
// implementation of this engine on any platform must read them verbatim,
// because a diverging constant produces different routes between platforms.
package costmodel

import (
	"fmt"
	"math"
	"strings"
)

type Mode int

const (
	ModeHiking Mode = iota
	ModeCycling
)

func (m Mode) String() string {
	switch m {
	case ModeCycling:
		return "cycling"
	default:
		return "hiking"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "hiking", "":
		return ModeHiking, nil
	case "cycling":
		return ModeCycling, nil
	}
	return ModeHiking, fmt.Errorf("unknown routing mode %q", s)
}

// Impassable marks a directed edge traversal that must never be chosen,
// e.g. the reverse direction of a one-way trail. EdgeCost never returns it;
// only callers assign it.
var Impassable = math.Inf(1)

// base speed in m/s
var baseSpeed = [2]float64{
	ModeHiking:  1.33,
	ModeCycling: 4.17,
}

// Naismith-derived ascent penalty in seconds per meter of gain
var climbPenaltyPerMetre = [2]float64{
	ModeHiking:  7.92,
	ModeCycling: 12.0,
}

// surface multipliers applied to the running total. Cycling penalizes soft
// surfaces much harder than hiking.
var surfaceMultiplier = [2]map[string]float64{
	ModeHiking: {
		"paved":         1.0,
		"asphalt":       1.0,
		"concrete":      1.0,
		"paving_stones": 1.05,
		"compacted":     1.05,
		"fine_gravel":   1.05,
		"gravel":        1.1,
		"ground":        1.1,
		"dirt":          1.2,
		"earth":         1.2,
		"grass":         1.3,
		"rock":          1.5,
		"scree":         1.7,
		"sand":          1.8,
		"mud":           2.0,
	},
	ModeCycling: {
		"paved":         1.0,
		"asphalt":       1.0,
		"concrete":      1.0,
		"paving_stones": 1.1,
		"compacted":     1.2,
		"fine_gravel":   1.3,
		"gravel":        1.4,
		"ground":        1.6,
		"dirt":          1.8,
		"earth":         1.8,
		"grass":         2.2,
		"rock":          3.0,
		"scree":         3.5,
		"sand":          3.5,
		"mud":           4.0,
	},
}

// default for unknown or missing surface tags
var surfaceDefault = [2]float64{
	ModeHiking:  1.15,
	ModeCycling: 1.5,
}

// SAC hiking scale multipliers, hiking only. Unknown or absent scale is 1.0.
var sacScaleMultiplier = map[string]float64{
	"hiking":                    1.0,
	"mountain_hiking":           1.2,
	"demanding_mountain_hiking": 1.4,
	"alpine_hiking":             1.7,
	"demanding_alpine_hiking":   2.2,
	"difficult_alpine_hiking":   2.6,
}

const sacScaleDefault = 1.0

// extra multiplier for stepped paths, hiking only
const stepsMultiplier = 1.25

// descentMultiplier is a stepped approximation of how descent grade affects
// speed: a gentle downhill is faster than flat, a very steep one is slower
// because of braking and caution.
func descentMultiplier(gradePercent float64) float64 {
	switch {
	case gradePercent < 10:
		return 0.5
	case gradePercent < 20:
		return 0.8
	case gradePercent < 30:
		return 1.0
	default:
		return 1.5
	}
}

// BaseSpeed returns the flat-ground speed for the mode in m/s.
func BaseSpeed(mode Mode) float64 {
	return baseSpeed[mode]
}

// HeuristicSpeed is the fastest speed any edge of the mode can be traversed
// at, used as the A* lower bound divisor. No multiplier in the tables above
// drops the per-meter cost below 1/BaseSpeed, so the base speed is that
// fastest speed.
func HeuristicSpeed(mode Mode) float64 {
	return baseSpeed[mode]
}

// EdgeCost computes the traversal cost in seconds for one directed edge.
// It is pure: identical inputs always yield identical output. It never
// returns Impassable; a caller marks the wrong direction of a one-way trail
// itself.
func EdgeCost(distance, gain, loss float64, surface, wayType, sacScale string, mode Mode) float64 {
	if distance <= 0 {
		return 0
	}

	cost := distance / baseSpeed[mode]
	cost += gain * climbPenaltyPerMetre[mode]

	gradePercent := 100.0 * loss / distance
	cost += loss * descentMultiplier(gradePercent)

	if m, ok := surfaceMultiplier[mode][surface]; ok {
		cost *= m
	} else {
		cost *= surfaceDefault[mode]
	}

	if mode == ModeHiking {
		if m, ok := sacScaleMultiplier[sacScale]; ok {
			cost *= m
		} else {
			cost *= sacScaleDefault
		}
		if wayType == "steps" {
			cost *= stepsMultiplier
		}
	}

	return cost
}
