package guidance_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
	"github.com/hherb/OpenHiker-sub005/pkg/guidance"
)

// buildPath assembles a ComputedPath along the given coordinates with one
// edge per consecutive pair. names is indexed per edge, short lists repeat
// the last entry.
func buildPath(coords []datastructure.Coordinate, names ...string) *datastructure.ComputedPath {
	path := &datastructure.ComputedPath{Polyline: coords}
	for i, c := range coords {
		path.Nodes = append(path.Nodes, datastructure.Node{ID: int32(i), Lat: c.Lat, Lon: c.Lon})
	}
	for i := 0; i+1 < len(coords); i++ {
		name := ""
		if len(names) > 0 {
			name = names[min(i, len(names)-1)]
		}
		a, b := coords[i], coords[i+1]
		dist := geo.DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
		path.Edges = append(path.Edges, datastructure.DirectedEdge{
			EdgeID:   int32(i),
			From:     int32(i),
			To:       int32(i + 1),
			Distance: dist,
			Cost:     dist / 1.33,
			Name:     name,
		})
		path.Distance += dist
	}
	return path
}

// turnPath heads due north for one edge, then turns by angleDeg for the
// second edge. Positive angles turn right.
func turnPath(angleDeg float64) *datastructure.ComputedPath {
	n0 := datastructure.NewCoordinate(47.2600, 11.3800)
	n1 := datastructure.NewCoordinate(47.2610, 11.3800)

	rad := angleDeg * math.Pi / 180
	dLat := 0.0010 * math.Cos(rad)
	dLonMeters := 111.2 * math.Sin(rad)
	dLon := dLonMeters / (111320 * math.Cos(n1.Lat*math.Pi/180))
	n2 := datastructure.NewCoordinate(n1.Lat+dLat, n1.Lon+dLon)

	return buildPath([]datastructure.Coordinate{n0, n1, n2}, "Almweg", "Gipfelsteig")
}

func TestTurnClassification(t *testing.T) {
	tests := []struct {
		name     string
		angle    float64
		wantSign int
	}{
		{"straight ahead emits nothing", 5, guidance.CONTINUE_ON_TRAIL},
		{"slight right", 25, guidance.TURN_SLIGHT_RIGHT},
		{"slight left", -25, guidance.TURN_SLIGHT_LEFT},
		{"right", 70, guidance.TURN_RIGHT},
		{"left", -70, guidance.TURN_LEFT},
		{"sharp right", 150, guidance.TURN_SHARP_RIGHT},
		{"sharp left", -150, guidance.TURN_SHARP_LEFT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instructions := guidance.GenerateInstructions(turnPath(tt.angle))

			if tt.wantSign == guidance.CONTINUE_ON_TRAIL {
				require.Len(t, instructions, 2)
				assert.Equal(t, guidance.START, instructions[0].Sign)
				assert.Equal(t, guidance.FINISH, instructions[1].Sign)
				return
			}

			require.Len(t, instructions, 3)
			assert.Equal(t, tt.wantSign, instructions[1].Sign)
			assert.Equal(t, "Gipfelsteig", instructions[1].Name)
		})
	}
}

func TestTurnDescriptions(t *testing.T) {
	instructions := guidance.GenerateInstructions(turnPath(70))
	require.Len(t, instructions, 3)

	assert.Equal(t, "Head North toward Almweg", instructions[0].GetTurnDescription())
	assert.Equal(t, "Turn right onto Gipfelsteig", instructions[1].GetTurnDescription())
	assert.Equal(t, "you have arrived at your destination", instructions[2].GetTurnDescription())
}

func TestInstructionDistanceAccumulates(t *testing.T) {
	// two straight edges north, then a right angle east, then one more edge
	coords := []datastructure.Coordinate{
		{Lat: 47.2600, Lon: 11.3800},
		{Lat: 47.2610, Lon: 11.3800},
		{Lat: 47.2620, Lon: 11.3800},
		{Lat: 47.2620, Lon: 11.3815},
	}
	path := buildPath(coords, "Almweg")
	instructions := guidance.GenerateInstructions(path)
	require.Len(t, instructions, 3)

	turn := instructions[1]
	assert.Equal(t, guidance.TURN_RIGHT, turn.Sign)
	assert.InDelta(t, path.Edges[0].Distance+path.Edges[1].Distance, turn.Distance, 1e-9)

	finish := instructions[2]
	assert.InDelta(t, path.Edges[2].Distance, finish.Distance, 1e-9)
}

func TestBearingUsesEdgeGeometry(t *testing.T) {
	// the first edge bends through an interior point and arrives heading
	// east, the second edge continues east. Node-to-node bearings alone
	// would call this a turn.
	path := buildPath([]datastructure.Coordinate{
		{Lat: 47.2600, Lon: 11.3800},
		{Lat: 47.2605, Lon: 11.3810},
		{Lat: 47.2605, Lon: 11.3820},
	}, "Almweg")
	path.Edges[0].Geometry = []datastructure.Coordinate{{Lat: 47.2605, Lon: 11.3800}}

	instructions := guidance.GenerateInstructions(path)
	require.Len(t, instructions, 2)
	assert.Equal(t, guidance.START, instructions[0].Sign)
	assert.Equal(t, guidance.FINISH, instructions[1].Sign)
}

func TestGenerateInstructionsEmptyPath(t *testing.T) {
	assert.Nil(t, guidance.GenerateInstructions(nil))
	assert.Nil(t, guidance.GenerateInstructions(&datastructure.ComputedPath{}))
}

func TestElevationProfile(t *testing.T) {
	coords := []datastructure.Coordinate{
		{Lat: 47.2600, Lon: 11.3800},
		{Lat: 47.2610, Lon: 11.3800},
		{Lat: 47.2620, Lon: 11.3800},
	}
	path := buildPath(coords, "Almweg")

	t.Run("samples only nodes with elevation", func(t *testing.T) {
		path.Nodes[0].Elevation, path.Nodes[0].HasElevation = 600, true
		path.Nodes[2].Elevation, path.Nodes[2].HasElevation = 650, true

		profile := guidance.ElevationProfile(path)
		require.Len(t, profile, 2)
		assert.Equal(t, 0.0, profile[0].Distance)
		assert.Equal(t, 600.0, profile[0].Elevation)
		assert.InDelta(t, path.Distance, profile[1].Distance, 1e-9)
		assert.Equal(t, 650.0, profile[1].Elevation)
	})

	t.Run("fewer than two samples yields nil", func(t *testing.T) {
		path.Nodes[2].HasElevation = false
		assert.Nil(t, guidance.ElevationProfile(path))
	})
}
