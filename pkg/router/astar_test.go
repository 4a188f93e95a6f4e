package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hherb/OpenHiker-sub005/domain"
	"github.com/hherb/OpenHiker-sub005/pkg/builder"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/elevation"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
	"github.com/hherb/OpenHiker-sub005/pkg/router"
	"github.com/hherb/OpenHiker-sub005/pkg/store"
)

var (
	trailhead = datastructure.NewCoordinate(47.2600, 11.3800)
	junction  = datastructure.NewCoordinate(47.2610, 11.3800)
	detour    = datastructure.NewCoordinate(47.2605, 11.3810)
	deadEnd   = datastructure.NewCoordinate(47.2615, 11.3790)
	islandA   = datastructure.NewCoordinate(47.3600, 11.3800)
	islandB   = datastructure.NewCoordinate(47.3610, 11.3800)
)

type staticTopology struct {
	topo *builder.Topology
}

func (s staticTopology) Load(ctx context.Context) (*builder.Topology, error) {
	return s.topo, nil
}

// a mud shortcut against a paved detour, a one-way spur and a disconnected
// island:
//
//	trailhead --mud-- junction --one-way-- deadEnd
//	      \            /
//	       -- detour --          (paved both legs)
//	islandA ---- islandB         (unreachable from the rest)
func routerTopology() *builder.Topology {
	nodes := map[int64]builder.TopologyNode{
		1: {ID: 1, Lat: trailhead.Lat, Lon: trailhead.Lon},
		2: {ID: 2, Lat: junction.Lat, Lon: junction.Lon},
		3: {ID: 3, Lat: detour.Lat, Lon: detour.Lon},
		4: {ID: 4, Lat: deadEnd.Lat, Lon: deadEnd.Lon},
		5: {ID: 5, Lat: islandA.Lat, Lon: islandA.Lon},
		6: {ID: 6, Lat: islandB.Lat, Lon: islandB.Lon},
	}
	ways := []builder.TopologyWay{
		{ID: 201, NodeIDs: []int64{1, 2}, WayType: "path", Surface: "mud"},
		{ID: 202, NodeIDs: []int64{1, 3}, WayType: "path", Surface: "paved"},
		{ID: 203, NodeIDs: []int64{3, 2}, WayType: "path", Surface: "paved"},
		{ID: 204, NodeIDs: []int64{2, 4}, WayType: "path", Surface: "paved", OneWay: true},
		{ID: 205, NodeIDs: []int64{5, 6}, WayType: "path", Surface: "paved"},
	}
	return &builder.Topology{Nodes: nodes, Ways: ways}
}

// flat elevations keep the costs purely distance and surface driven
func routerElevation() elevation.Source {
	return &elevation.StaticSource{Samples: map[[2]float64]float64{
		{trailhead.Lat, trailhead.Lon}: 600,
		{junction.Lat, junction.Lon}:   600,
		{detour.Lat, detour.Lon}:       600,
		{deadEnd.Lat, deadEnd.Lon}:     600,
	}}
}

func newTestFinder(t *testing.T) *router.RouteFinder {
	t.Helper()
	path := t.TempDir() + "/region"

	b := builder.NewGraphBuilder(staticTopology{routerTopology()}, routerElevation(), costmodel.ModeHiking, nil)
	require.NoError(t, b.Build(context.Background(), path, "router-test"))

	g, err := store.OpenRegion(path)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return router.NewRouteFinder(g)
}

func errCode(t *testing.T, err error) error {
	t.Helper()
	var derr *domain.Error
	require.True(t, errors.As(err, &derr), "want *domain.Error, got %v", err)
	return derr.Code()
}

func TestFindRouteTakesCheaperDetour(t *testing.T) {
	rf := newTestFinder(t)

	path, err := rf.FindRoute(context.Background(), trailhead, junction, nil, costmodel.ModeHiking, false)
	require.NoError(t, err)

	// the paved detour beats the direct mud edge despite being longer
	require.Len(t, path.Nodes, 3)
	require.Len(t, path.Edges, 2)
	assert.InDelta(t, detour.Lat, path.Nodes[1].Lat, 1e-6)
	assert.InDelta(t, detour.Lon, path.Nodes[1].Lon, 1e-6)
	for _, e := range path.Edges {
		assert.Equal(t, "paved", e.Surface)
	}

	directDist := geo.DistanceMeters(trailhead.Lat, trailhead.Lon, junction.Lat, junction.Lon)
	directCost := costmodel.EdgeCost(directDist, 0, 0, "mud", "path", "", costmodel.ModeHiking)
	assert.Less(t, path.Cost, directCost)
	assert.Greater(t, path.Distance, directDist)
	assert.Equal(t, path.Cost, path.Duration)
}

func TestFindRouteSingleEdgeTotals(t *testing.T) {
	rf := newTestFinder(t)

	path, err := rf.FindRoute(context.Background(), junction, deadEnd, nil, costmodel.ModeHiking, false)
	require.NoError(t, err)

	require.Len(t, path.Edges, 1)
	expected := geo.DistanceMeters(junction.Lat, junction.Lon, deadEnd.Lat, deadEnd.Lon)
	assert.InDelta(t, expected, path.Distance, 1e-9)

	// polyline spans exactly start node to end node
	require.Len(t, path.Polyline, 2)
	assert.InDelta(t, junction.Lat, path.Polyline[0].Lat, 1e-6)
	assert.InDelta(t, deadEnd.Lat, path.Polyline[1].Lat, 1e-6)
}

func TestFindRouteRespectsOneWay(t *testing.T) {
	rf := newTestFinder(t)

	// the only edge at the dead end is one-way towards it
	_, err := rf.FindRoute(context.Background(), deadEnd, junction, nil, costmodel.ModeHiking, false)
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoPathFound, errCode(t, err))
}

func TestFindRouteDisconnectedComponents(t *testing.T) {
	rf := newTestFinder(t)

	_, err := rf.FindRoute(context.Background(), trailhead, islandA, nil, costmodel.ModeHiking, false)
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoPathFound, errCode(t, err))
}

func TestFindRouteSquareTakesTwoSides(t *testing.T) {
	// square of equal-cost sides, opposite corners connect over exactly two
	// of them through either adjacent corner, never around three
	a := datastructure.NewCoordinate(47.5000, 11.5000)
	b := datastructure.NewCoordinate(47.5000, 11.5014)
	c := datastructure.NewCoordinate(47.5010, 11.5014)
	d := datastructure.NewCoordinate(47.5010, 11.5000)

	topo := &builder.Topology{
		Nodes: map[int64]builder.TopologyNode{
			11: {ID: 11, Lat: a.Lat, Lon: a.Lon},
			12: {ID: 12, Lat: b.Lat, Lon: b.Lon},
			13: {ID: 13, Lat: c.Lat, Lon: c.Lon},
			14: {ID: 14, Lat: d.Lat, Lon: d.Lon},
		},
		Ways: []builder.TopologyWay{
			{ID: 301, NodeIDs: []int64{11, 12}, WayType: "path", Surface: "paved"},
			{ID: 302, NodeIDs: []int64{12, 13}, WayType: "path", Surface: "paved"},
			{ID: 303, NodeIDs: []int64{13, 14}, WayType: "path", Surface: "paved"},
			{ID: 304, NodeIDs: []int64{14, 11}, WayType: "path", Surface: "paved"},
		},
	}

	dir := t.TempDir() + "/square"
	gb := builder.NewGraphBuilder(staticTopology{topo}, &elevation.StaticSource{}, costmodel.ModeHiking, nil)
	require.NoError(t, gb.Build(context.Background(), dir, "square-test"))
	g, err := store.OpenRegion(dir)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	path, err := router.NewRouteFinder(g).FindRoute(context.Background(), a, c, nil, costmodel.ModeHiking, false)
	require.NoError(t, err)

	require.Len(t, path.Edges, 2)
	latSide := geo.DistanceMeters(a.Lat, a.Lon, d.Lat, d.Lon)
	lonSide := geo.DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
	twoSides := costmodel.EdgeCost(latSide, 0, 0, "paved", "path", "", costmodel.ModeHiking) +
		costmodel.EdgeCost(lonSide, 0, 0, "paved", "path", "", costmodel.ModeHiking)
	assert.InDelta(t, twoSides, path.Cost, 1e-6)

	mid := path.Nodes[1]
	viaB := mid.Lat == b.Lat && mid.Lon == b.Lon
	viaD := mid.Lat == d.Lat && mid.Lon == d.Lon
	assert.True(t, viaB || viaD, "intermediate corner must be adjacent to the start")
}

func TestFindRouteWithViaAndLoop(t *testing.T) {
	rf := newTestFinder(t)

	via := []datastructure.Coordinate{detour}
	path, err := rf.FindRoute(context.Background(), trailhead, junction, via, costmodel.ModeHiking, true)
	require.NoError(t, err)

	assert.Equal(t, via, path.Via)

	// loop: first and last point coincide at the start
	require.NotEmpty(t, path.Polyline)
	first, last := path.Polyline[0], path.Polyline[len(path.Polyline)-1]
	assert.InDelta(t, trailhead.Lat, first.Lat, 1e-6)
	assert.InDelta(t, trailhead.Lat, last.Lat, 1e-6)
	assert.InDelta(t, trailhead.Lon, last.Lon, 1e-6)

	// every leg boundary appears once, no duplicated junction nodes
	require.Len(t, path.Edges, len(path.Nodes)-1)

	// via leg passes the detour node
	var sawVia bool
	for _, n := range path.Nodes {
		if n.Lat == detour.Lat && n.Lon == detour.Lon {
			sawVia = true
		}
	}
	assert.True(t, sawVia)
}

func TestFindRouteViaPointUnreachable(t *testing.T) {
	rf := newTestFinder(t)

	via := []datastructure.Coordinate{islandA}
	_, err := rf.FindRoute(context.Background(), trailhead, junction, via, costmodel.ModeHiking, false)
	require.Error(t, err)
	assert.Equal(t, domain.ErrViaPointUnreachable, errCode(t, err))

	var verr *domain.ViaPointUnreachableError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, verr.Index)
	assert.Equal(t, islandA.Lat, verr.Lat)
}

func TestFindRouteSnapFailure(t *testing.T) {
	rf := newTestFinder(t)

	offGrid := datastructure.NewCoordinate(47.0000, 11.0000)
	_, err := rf.FindRoute(context.Background(), offGrid, junction, nil, costmodel.ModeHiking, false)
	require.Error(t, err)
	assert.Equal(t, domain.ErrPointNotOnTrail, errCode(t, err))

	var perr *domain.PointNotOnTrailError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "start", perr.Which)
	assert.Equal(t, -1, perr.ViaIndex)
}

func TestFindRouteRecomputesForOtherMode(t *testing.T) {
	rf := newTestFinder(t)

	hiking, err := rf.FindRoute(context.Background(), trailhead, junction, nil, costmodel.ModeHiking, false)
	require.NoError(t, err)
	cycling, err := rf.FindRoute(context.Background(), trailhead, junction, nil, costmodel.ModeCycling, false)
	require.NoError(t, err)

	// the region was built with the hiking profile, cycling costs come from
	// recomputation and are cheaper on paved ground
	assert.Less(t, cycling.Cost, hiking.Cost)
	assert.Equal(t, hiking.Distance, cycling.Distance)
}

func TestFindRouteDeterministic(t *testing.T) {
	rf := newTestFinder(t)

	via := []datastructure.Coordinate{detour}
	first, err := rf.FindRoute(context.Background(), trailhead, junction, via, costmodel.ModeHiking, true)
	require.NoError(t, err)
	second, err := rf.FindRoute(context.Background(), trailhead, junction, via, costmodel.ModeHiking, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFindRouteCancellation(t *testing.T) {
	rf := newTestFinder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rf.FindRoute(ctx, trailhead, junction, nil, costmodel.ModeHiking, false)
	require.ErrorIs(t, err, context.Canceled)
}
