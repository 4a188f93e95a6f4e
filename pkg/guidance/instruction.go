// Package guidance derives turn-by-turn instructions and live navigation
// state from a computed path.
package guidance

import (
	"fmt"
	"strings"

	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
)

const (
	TURN_SHARP_LEFT   = -3
	TURN_LEFT         = -2
	TURN_SLIGHT_LEFT  = -1
	CONTINUE_ON_TRAIL = 0
	TURN_SLIGHT_RIGHT = 1
	TURN_RIGHT        = 2
	TURN_SHARP_RIGHT  = 3
	FINISH            = 4
	START             = 101
)

// turn classification bands in degrees of bearing change
const (
	continueMaxDegree = 13.0
	slightMaxDegree   = 40.0
	turnMaxDegree     = 105.0
)

type Instruction struct {
	Point    datastructure.Coordinate
	Sign     int
	Name     string
	Distance float64 // meters walked since the previous instruction
	Time     float64 // seconds walked since the previous instruction
	Heading  float64 // initial bearing, only meaningful on START
}

func (instr *Instruction) GetTurnDescription() string {
	streetName := instr.Name
	var description string

	switch instr.Sign {
	case CONTINUE_ON_TRAIL:
		if isEmpty(streetName) {
			description = "Continue"
		} else {
			description = fmt.Sprintf("Continue onto %s", streetName)
		}
	case START:
		compassDir := azimuthToCompass(instr.Heading)
		if isEmpty(streetName) {
			description = fmt.Sprintf("Head %s", compassDir)
		} else {
			description = fmt.Sprintf("Head %s toward %s", compassDir, streetName)
		}
	case FINISH:
		description = "you have arrived at your destination"
	default:
		dir := getDirectionDescription(instr.Sign)
		if isEmpty(streetName) {
			description = dir
		} else {
			description = fmt.Sprintf("%s onto %s", dir, streetName)
		}
	}
	return description
}

func getDirectionDescription(sign int) string {
	switch sign {
	case TURN_SHARP_LEFT:
		return "Turn sharp left"
	case TURN_LEFT:
		return "Turn left"
	case TURN_SLIGHT_LEFT:
		return "Turn slight left"
	case TURN_SLIGHT_RIGHT:
		return "Turn slight right"
	case TURN_RIGHT:
		return "Turn right"
	case TURN_SHARP_RIGHT:
		return "Turn sharp right"
	default:
		return ""
	}
}

func azimuthToCompass(azimuth float64) string {
	if azimuth < 22.5 {
		return "North"
	} else if azimuth < 67.5 {
		return "North East"
	} else if azimuth < 112.5 {
		return "East"
	} else if azimuth < 157.5 {
		return "South East"
	} else if azimuth < 202.5 {
		return "South"
	} else if azimuth < 247.5 {
		return "South West"
	} else if azimuth < 292.5 {
		return "West"
	} else if azimuth < 337.5 {
		return "North West"
	}
	return "North"
}

func isEmpty(str string) bool {
	return strings.TrimSpace(str) == ""
}

// turnSign classifies a signed bearing change in degrees. Negative is left.
func turnSign(delta float64) int {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < continueMaxDegree:
		return CONTINUE_ON_TRAIL
	case abs < slightMaxDegree:
		if delta < 0 {
			return TURN_SLIGHT_LEFT
		}
		return TURN_SLIGHT_RIGHT
	case abs < turnMaxDegree:
		if delta < 0 {
			return TURN_LEFT
		}
		return TURN_RIGHT
	default:
		if delta < 0 {
			return TURN_SHARP_LEFT
		}
		return TURN_SHARP_RIGHT
	}
}

// incomingBearing is the bearing of the final segment of an edge, using the
// last interior geometry point when one exists.
func incomingBearing(edge datastructure.DirectedEdge, from, to datastructure.Coordinate) float64 {
	a := from
	if n := len(edge.Geometry); n > 0 {
		a = edge.Geometry[n-1]
	}
	return geo.Bearing(a.Lat, a.Lon, to.Lat, to.Lon)
}

// outgoingBearing is the bearing of the first segment of an edge.
func outgoingBearing(edge datastructure.DirectedEdge, from, to datastructure.Coordinate) float64 {
	b := to
	if len(edge.Geometry) > 0 {
		b = edge.Geometry[0]
	}
	return geo.Bearing(from.Lat, from.Lon, b.Lat, b.Lon)
}

func nodeCoordinate(n datastructure.Node) datastructure.Coordinate {
	return datastructure.Coordinate{Lat: n.Lat, Lon: n.Lon}
}

// GenerateInstructions walks the edge sequence of a path and emits an
// instruction at every junction where the bearing change leaves the continue
// band. Start and finish instructions frame the list; a junction below the
// continue threshold emits nothing and its distance accumulates into the
// next instruction.
func GenerateInstructions(path *datastructure.ComputedPath) []Instruction {
	if path == nil || len(path.Edges) == 0 || len(path.Nodes) != len(path.Edges)+1 {
		return nil
	}

	first := path.Edges[0]
	instructions := []Instruction{{
		Point:   nodeCoordinate(path.Nodes[0]),
		Sign:    START,
		Name:    first.Name,
		Heading: outgoingBearing(first, nodeCoordinate(path.Nodes[0]), nodeCoordinate(path.Nodes[1])),
	}}

	sinceDist, sinceTime := path.Edges[0].Distance, path.Edges[0].Cost
	for i := 1; i < len(path.Edges); i++ {
		prev := path.Edges[i-1]
		next := path.Edges[i]
		junction := nodeCoordinate(path.Nodes[i])

		in := incomingBearing(prev, nodeCoordinate(path.Nodes[i-1]), junction)
		out := outgoingBearing(next, junction, nodeCoordinate(path.Nodes[i+1]))
		sign := turnSign(geo.TurnDelta(in, out))

		if sign != CONTINUE_ON_TRAIL {
			instructions = append(instructions, Instruction{
				Point:    junction,
				Sign:     sign,
				Name:     next.Name,
				Distance: sinceDist,
				Time:     sinceTime,
			})
			sinceDist, sinceTime = 0, 0
		}
		sinceDist += next.Distance
		sinceTime += next.Cost
	}

	last := len(path.Nodes) - 1
	instructions = append(instructions, Instruction{
		Point:    nodeCoordinate(path.Nodes[last]),
		Sign:     FINISH,
		Distance: sinceDist,
		Time:     sinceTime,
	})
	return instructions
}

// ProfileSample is one point of the route elevation chart.
type ProfileSample struct {
	Distance  float64 `json:"distance"` // cumulative meters from the start
	Elevation float64 `json:"elevation"`
}

// ElevationProfile samples elevation at every path node that carries one.
// Returns nil when fewer than two nodes have elevation, a one-point chart
// renders nothing useful.
func ElevationProfile(path *datastructure.ComputedPath) []ProfileSample {
	if path == nil {
		return nil
	}
	var samples []ProfileSample
	cumulative := 0.0
	for i, n := range path.Nodes {
		if i > 0 {
			cumulative += path.Edges[i-1].Distance
		}
		if n.HasElevation {
			samples = append(samples, ProfileSample{Distance: cumulative, Elevation: n.Elevation})
		}
	}
	if len(samples) < 2 {
		return nil
	}
	return samples
}
