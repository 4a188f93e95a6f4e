package datastructure

import (
	"github.com/twpayne/go-polyline"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{Lat: lat, Lon: lon}
}

// Node is a trail junction or a trail endpoint. Interior shape points of a
// way are folded into edge geometry and never become nodes.
type Node struct {
	ID           int32
	Lat          float64
	Lon          float64
	Elevation    float64
	HasElevation bool
}

// Edge connects two junction nodes. A single record carries both traversal
// directions: Cost for From->To and ReverseCost for To->From. The reverse
// direction of a one-way trail carries costmodel.Impassable instead of being
// omitted, so the graph keeps a fixed shape.
type Edge struct {
	ID          int32
	From        int32
	To          int32
	Distance    float64 // meters
	Gain        float64 // meters of ascent From->To
	Loss        float64 // meters of descent From->To
	Surface     string
	WayType     string
	SacScale    string
	Visibility  string
	Name        string
	WayID       int64
	Cost        float64
	ReverseCost float64
	OneWay      bool
	Geometry    []Coordinate // interior shape points From->To, excluding both endpoints
}

// EdgeRef addresses one traversal direction of an Edge in an adjacency list.
type EdgeRef struct {
	EdgeID  int32
	Forward bool
}

// DirectedEdge is an Edge resolved for one traversal direction.
type DirectedEdge struct {
	EdgeID   int32
	From     int32
	To       int32
	Distance float64
	Gain     float64
	Loss     float64
	Surface  string
	WayType  string
	SacScale string
	Name     string
	Cost     float64
	Geometry []Coordinate // oriented From->To
}

// Directed resolves the edge for the given traversal direction. Gain and
// loss swap on reverse traversal, geometry is reversed.
func (e *Edge) Directed(forward bool) DirectedEdge {
	de := DirectedEdge{
		EdgeID:   e.ID,
		From:     e.From,
		To:       e.To,
		Distance: e.Distance,
		Gain:     e.Gain,
		Loss:     e.Loss,
		Surface:  e.Surface,
		WayType:  e.WayType,
		SacScale: e.SacScale,
		Name:     e.Name,
		Cost:     e.Cost,
		Geometry: e.Geometry,
	}
	if !forward {
		de.From, de.To = e.To, e.From
		de.Gain, de.Loss = e.Loss, e.Gain
		de.Cost = e.ReverseCost
		de.Geometry = reverseCoords(e.Geometry)
	}
	return de
}

func reverseCoords(coords []Coordinate) []Coordinate {
	if len(coords) == 0 {
		return coords
	}
	rev := make([]Coordinate, len(coords))
	for i, c := range coords {
		rev[len(coords)-1-i] = c
	}
	return rev
}

// ComputedPath is the result of one route request. Via keeps the original
// via-point list so the route can be recomputed after a via-point edit.
type ComputedPath struct {
	Nodes    []Node
	Edges    []DirectedEdge // len(Edges) == len(Nodes)-1
	Distance float64        // meters
	Cost     float64
	Duration float64 // seconds
	Gain     float64
	Loss     float64
	Polyline []Coordinate // nodes plus unpacked intermediate geometry
	Via      []Coordinate
}

type RegionMetadata struct {
	RegionID  string
	Profile   string
	NodeCount int
	EdgeCount int
	BuildDate string
}

// RenderPath encodes a coordinate sequence as a google encoded polyline for
// the response payload.
func RenderPath(path []Coordinate) string {
	coords := make([][]float64, 0, len(path))
	for _, p := range path {
		coords = append(coords, []float64{p.Lat, p.Lon})
	}
	return string(polyline.EncodeCoords(coords))
}
