package builder_test

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hherb/OpenHiker-sub005/pkg/builder"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/elevation"
	"github.com/hherb/OpenHiker-sub005/pkg/store"
)

type staticTopology struct {
	topo *builder.Topology
}

func (s staticTopology) Load(ctx context.Context) (*builder.Topology, error) {
	return s.topo, nil
}

// a Y of trails plus a folded chain and a discarded road:
//
//	n1 --w1-- n2 --w1-- n3      w1 path (n2 shared with w2)
//	          |
//	          w2 (one-way)
//	          |
//	          n4
//	n5 --w3-- n6 --w3-- n7      w3 track, n6 interior
//	n8 --w4-- n9                w4 motorway, not routable
func testTopology() *builder.Topology {
	nodes := map[int64]builder.TopologyNode{
		1: {ID: 1, Lat: 47.2600, Lon: 11.3800},
		2: {ID: 2, Lat: 47.2610, Lon: 11.3800},
		3: {ID: 3, Lat: 47.2620, Lon: 11.3800},
		4: {ID: 4, Lat: 47.2610, Lon: 11.3810},
		5: {ID: 5, Lat: 47.2700, Lon: 11.3900},
		6: {ID: 6, Lat: 47.2710, Lon: 11.3905},
		7: {ID: 7, Lat: 47.2720, Lon: 11.3910},
		8: {ID: 8, Lat: 47.2800, Lon: 11.4000},
		9: {ID: 9, Lat: 47.2810, Lon: 11.4000},
	}
	ways := []builder.TopologyWay{
		{ID: 101, NodeIDs: []int64{1, 2, 3}, WayType: "path", Surface: "gravel", Name: "Panoramaweg"},
		{ID: 102, NodeIDs: []int64{2, 4}, WayType: "path", Surface: "ground", OneWay: true},
		{ID: 103, NodeIDs: []int64{5, 6, 7}, WayType: "track", Surface: "dirt"},
		{ID: 104, NodeIDs: []int64{8, 9}, WayType: "motorway"},
	}
	return &builder.Topology{Nodes: nodes, Ways: ways}
}

func testElevation() elevation.Source {
	return &elevation.StaticSource{Samples: map[[2]float64]float64{
		{47.2600, 11.3800}: 600,
		{47.2610, 11.3800}: 640,
		{47.2620, 11.3800}: 630,
		{47.2610, 11.3810}: 700,
		// n5..n7 have no samples, lookup misses are tolerated
	}}
}

func buildTestRegion(t *testing.T) *store.GraphStore {
	t.Helper()
	path := t.TempDir() + "/region"

	b := builder.NewGraphBuilder(staticTopology{testTopology()}, testElevation(), costmodel.ModeHiking, nil)
	require.NoError(t, b.Build(context.Background(), path, "unit-test"))

	g, err := store.OpenRegion(path)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestBuildGraph(t *testing.T) {
	g := buildTestRegion(t)
	meta := g.Metadata()

	// n6 folds into geometry, the motorway never enters the graph
	assert.Equal(t, 6, meta.NodeCount)
	assert.Equal(t, 4, meta.EdgeCount)
	assert.Equal(t, "unit-test", meta.RegionID)
	assert.Equal(t, "hiking", meta.Profile)
}

func TestInteriorNodesFoldIntoGeometry(t *testing.T) {
	g := buildTestRegion(t)

	var folded bool
	for id := int32(0); id < int32(g.Metadata().EdgeCount); id++ {
		e := g.Edge(id)
		if e.WayID == 103 {
			folded = true
			require.Len(t, e.Geometry, 1)
			assert.InDelta(t, 47.2710, e.Geometry[0].Lat, 1e-5)
			assert.InDelta(t, 11.3905, e.Geometry[0].Lon, 1e-5)
			// distance accumulates across the folded point, so it exceeds
			// the straight line between the endpoints
			assert.Greater(t, e.Distance, 0.0)
		}
	}
	assert.True(t, folded)
}

func TestTwinEdgeCosts(t *testing.T) {
	g := buildTestRegion(t)

	for id := int32(0); id < int32(g.Metadata().EdgeCount); id++ {
		e := g.Edge(id)
		if e.OneWay {
			assert.True(t, math.IsInf(e.ReverseCost, 1), "one-way edge %d must have impassable reverse", e.ID)
			continue
		}
		// the reverse cost must equal an independent computation with
		// swapped gain/loss
		expected := costmodel.EdgeCost(e.Distance, e.Loss, e.Gain, e.Surface, e.WayType, e.SacScale, costmodel.ModeHiking)
		assert.Equal(t, expected, e.ReverseCost, "edge %d", e.ID)
	}
}

func TestElevationHandling(t *testing.T) {
	g := buildTestRegion(t)

	t.Run("gain and loss derive from junction elevations", func(t *testing.T) {
		for id := int32(0); id < int32(g.Metadata().EdgeCount); id++ {
			e := g.Edge(id)
			if e.WayID != 101 {
				continue
			}
			from, to := g.Node(e.From), g.Node(e.To)
			require.True(t, from.HasElevation)
			require.True(t, to.HasElevation)
			diff := to.Elevation - from.Elevation
			assert.Equal(t, math.Max(diff, 0), e.Gain)
			assert.Equal(t, math.Max(-diff, 0), e.Loss)
		}
	})

	t.Run("lookup misses leave nodes without elevation", func(t *testing.T) {
		var missing int
		for id := int32(0); id < int32(g.Metadata().NodeCount); id++ {
			if !g.Node(id).HasElevation {
				missing++
			}
		}
		// n5 and n7 (n6 was folded away)
		assert.Equal(t, 2, missing)
	})

	t.Run("edges without elevation carry zero gain and loss", func(t *testing.T) {
		for id := int32(0); id < int32(g.Metadata().EdgeCount); id++ {
			e := g.Edge(id)
			if e.WayID == 103 {
				assert.Equal(t, 0.0, e.Gain)
				assert.Equal(t, 0.0, e.Loss)
			}
		}
	})
}

func TestResidentialConnectorIsRoutable(t *testing.T) {
	topo := &builder.Topology{
		Nodes: map[int64]builder.TopologyNode{
			1: {ID: 1, Lat: 47.3000, Lon: 11.4100},
			2: {ID: 2, Lat: 47.3010, Lon: 11.4100},
		},
		Ways: []builder.TopologyWay{
			{ID: 105, NodeIDs: []int64{1, 2}, WayType: "residential", Name: "Dorfstrasse"},
		},
	}

	path := t.TempDir() + "/residential"
	b := builder.NewGraphBuilder(staticTopology{topo}, &elevation.StaticSource{}, costmodel.ModeHiking, nil)
	require.NoError(t, b.Build(context.Background(), path, "residential-region"))

	g, err := store.OpenRegion(path)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	require.Equal(t, 1, g.Metadata().EdgeCount)
	assert.Equal(t, "residential", g.Edge(0).WayType)
}

func TestBuildCancellation(t *testing.T) {
	path := t.TempDir() + "/cancelled"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := builder.NewGraphBuilder(staticTopology{testTopology()}, testElevation(), costmodel.ModeHiking, nil)
	err := b.Build(ctx, path, "cancelled-region")
	require.ErrorIs(t, err, context.Canceled)

	// the partial store must be cleaned up
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildProgressReporting(t *testing.T) {
	path := t.TempDir() + "/progress"

	var phases []string
	progress := func(phase string, frac float64, nodes, edges int) {
		if len(phases) == 0 || phases[len(phases)-1] != phase {
			phases = append(phases, phase)
		}
	}

	b := builder.NewGraphBuilder(staticTopology{testTopology()}, testElevation(), costmodel.ModeHiking, progress)
	require.NoError(t, b.Build(context.Background(), path, "progress-region"))

	assert.Equal(t, []string{"topology", "elevation", "nodes", "edges", "finalize"}, phases)
}
