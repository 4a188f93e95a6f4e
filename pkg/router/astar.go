// Package router answers route requests against an opened region graph with
// A* search. Multi-waypoint requests run as sequential legs between
// consecutive waypoints and concatenate into one path.
package router

import (
	"context"
	"errors"
	"math"

	"github.com/hherb/OpenHiker-sub005/domain"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
	"github.com/hherb/OpenHiker-sub005/pkg/store"
	"github.com/hherb/OpenHiker-sub005/util"
)

// ctxCheckInterval is how many queue pops happen between cancellation checks.
const ctxCheckInterval = 1024

type RouteFinder struct {
	g          *store.GraphStore
	snapRadius float64
}

func NewRouteFinder(g *store.GraphStore) *RouteFinder {
	return &RouteFinder{
		g:          g,
		snapRadius: store.DefaultSnapRadiusMeters,
	}
}

// FindRoute computes the cheapest route from -> via... -> to for the given
// mode. With loop set, the route continues from the destination back to the
// start. Each waypoint snaps to the graph independently, so a failure names
// the offending point.
func (rf *RouteFinder) FindRoute(ctx context.Context, from, to datastructure.Coordinate,
	via []datastructure.Coordinate, mode costmodel.Mode, loop bool) (*datastructure.ComputedPath, error) {
	if rf.g == nil {
		return nil, domain.WrapErrorf(nil, domain.ErrNoGraphLoaded, "route requested with no region open")
	}

	waypoints, err := rf.snapWaypoints(from, to, via)
	if err != nil {
		return nil, err
	}
	if loop {
		waypoints = append(waypoints, waypoints[0])
	}

	legs := make([]leg, 0, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		lg, found, err := rf.search(ctx, waypoints[i], waypoints[i+1], mode)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, rf.legFailure(i, via)
		}
		legs = append(legs, lg)
	}

	return rf.assemble(legs, via, mode), nil
}

// legFailure attributes a disconnected leg to a via point when one bounds it.
// Waypoint i+1 is via i for 0 <= i < len(via); waypoint 0 is the start.
func (rf *RouteFinder) legFailure(legIdx int, via []datastructure.Coordinate) error {
	if legIdx < len(via) {
		v := via[legIdx]
		return domain.WrapErrorf(
			&domain.ViaPointUnreachableError{Index: legIdx, Lat: v.Lat, Lon: v.Lon},
			domain.ErrViaPointUnreachable, "route leg %d", legIdx)
	}
	if legIdx >= 1 && legIdx-1 < len(via) {
		v := via[legIdx-1]
		return domain.WrapErrorf(
			&domain.ViaPointUnreachableError{Index: legIdx - 1, Lat: v.Lat, Lon: v.Lon},
			domain.ErrViaPointUnreachable, "route leg %d", legIdx)
	}
	return domain.WrapErrorf(nil, domain.ErrNoPathFound, "start and destination are not connected")
}

func (rf *RouteFinder) snapWaypoints(from, to datastructure.Coordinate,
	via []datastructure.Coordinate) ([]int32, error) {
	waypoints := make([]int32, 0, len(via)+2)

	id, err := rf.snap(from, "start", -1)
	if err != nil {
		return nil, err
	}
	waypoints = append(waypoints, id)

	for i, v := range via {
		id, err := rf.snap(v, "via", i)
		if err != nil {
			return nil, err
		}
		waypoints = append(waypoints, id)
	}

	id, err = rf.snap(to, "destination", -1)
	if err != nil {
		return nil, err
	}
	return append(waypoints, id), nil
}

func (rf *RouteFinder) snap(c datastructure.Coordinate, which string, viaIdx int) (int32, error) {
	n, err := rf.g.NearestNode(c.Lat, c.Lon, rf.snapRadius)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Code() == domain.ErrPointNotOnTrail {
			return 0, domain.WrapErrorf(
				&domain.PointNotOnTrailError{Lat: c.Lat, Lon: c.Lon, Which: which, ViaIndex: viaIdx},
				domain.ErrPointNotOnTrail, "snap %s point", which)
		}
		return 0, err
	}
	return n.ID, nil
}

// leg is one search result between two consecutive waypoints.
type leg struct {
	nodes []int32
	refs  []datastructure.EdgeRef
}

// search runs A* between two graph nodes. The heuristic is straight-line
// distance over the mode's base speed, which never overestimates because no
// cost-table multiplier makes an edge cheaper than flat base-speed walking.
func (rf *RouteFinder) search(ctx context.Context, from, to int32, mode costmodel.Mode) (leg, bool, error) {
	if err := ctx.Err(); err != nil {
		return leg{}, false, err
	}
	if from == to {
		return leg{nodes: []int32{from}}, true, nil
	}

	goal := rf.g.Node(to)
	heuristic := func(id int32) float64 {
		n := rf.g.Node(id)
		return geo.DistanceMeters(n.Lat, n.Lon, goal.Lat, goal.Lon) / costmodel.HeuristicSpeed(mode)
	}

	costSoFar := map[int32]float64{from: 0}
	cameFrom := make(map[int32]datastructure.EdgeRef)
	settled := make(map[int32]bool)

	pq := NewMinHeap[int32]()
	hStart := heuristic(from)
	pq.Insert(PriorityQueueNode[int32]{Rank: hStart, Tie: hStart, Item: from})

	popped := 0
	for pq.Size() > 0 {
		popped++
		if popped%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return leg{}, false, err
			}
		}

		current, _ := pq.ExtractMin()
		u := current.Item
		if u == to {
			return rf.reconstruct(from, to, cameFrom), true, nil
		}
		settled[u] = true

		for _, ref := range rf.g.OutEdges(u) {
			de := rf.g.DirectedEdge(ref)
			weight := rf.edgeCost(de, mode)
			if math.IsInf(weight, 1) {
				continue
			}
			v := de.To
			if settled[v] {
				continue
			}

			tentative := costSoFar[u] + weight
			known, seen := costSoFar[v]
			if seen && tentative >= known {
				continue
			}
			costSoFar[v] = tentative
			cameFrom[v] = ref
			hv := heuristic(v)
			next := PriorityQueueNode[int32]{Rank: tentative + hv, Tie: hv, Item: v}
			if !seen {
				pq.Insert(next)
			} else if err := pq.DecreaseKey(next); err != nil {
				pq.Insert(next)
			}
		}
	}
	return leg{}, false, nil
}

func (rf *RouteFinder) reconstruct(from, to int32, cameFrom map[int32]datastructure.EdgeRef) leg {
	lg := leg{nodes: []int32{to}}
	for current := to; current != from; {
		ref := cameFrom[current]
		lg.refs = append(lg.refs, ref)
		current = rf.g.DirectedEdge(ref).From
		lg.nodes = append(lg.nodes, current)
	}
	util.ReverseG(lg.nodes)
	util.ReverseG(lg.refs)
	return lg
}

// edgeCost uses the cost persisted at build time when the request mode
// matches the region's build profile and recomputes from the edge attributes
// otherwise. The impassable sentinel survives either way.
func (rf *RouteFinder) edgeCost(de datastructure.DirectedEdge, mode costmodel.Mode) float64 {
	if rf.g.Metadata().Profile == mode.String() {
		return de.Cost
	}
	if math.IsInf(de.Cost, 1) {
		return costmodel.Impassable
	}
	return costmodel.EdgeCost(de.Distance, de.Gain, de.Loss, de.Surface, de.WayType, de.SacScale, mode)
}

// assemble concatenates the legs into one path, dropping the shared boundary
// node between consecutive legs, and unpacks edge geometry into the polyline.
func (rf *RouteFinder) assemble(legs []leg, via []datastructure.Coordinate,
	mode costmodel.Mode) *datastructure.ComputedPath {
	path := &datastructure.ComputedPath{
		Via: append([]datastructure.Coordinate{}, via...),
	}

	for li, lg := range legs {
		start := 0
		if li > 0 {
			start = 1
		}
		for _, id := range lg.nodes[start:] {
			path.Nodes = append(path.Nodes, rf.g.Node(id))
		}
		for _, ref := range lg.refs {
			de := rf.g.DirectedEdge(ref)
			path.Edges = append(path.Edges, de)
			path.Distance += de.Distance
			path.Gain += de.Gain
			path.Loss += de.Loss
			path.Cost += rf.edgeCost(de, mode)
		}
	}
	path.Duration = path.Cost

	if len(path.Nodes) > 0 {
		first := path.Nodes[0]
		path.Polyline = append(path.Polyline, datastructure.Coordinate{Lat: first.Lat, Lon: first.Lon})
	}
	for _, de := range path.Edges {
		path.Polyline = append(path.Polyline, de.Geometry...)
		end := rf.g.Node(de.To)
		path.Polyline = append(path.Polyline, datastructure.Coordinate{Lat: end.Lat, Lon: end.Lon})
	}
	return path
}
