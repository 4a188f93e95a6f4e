// Package builder turns raw trail topology plus elevation into a persisted
// region graph. A build is atomic at the region level: any failure or
// cancellation deletes the partially written store.
package builder

import (
	"context"
	"math"
	"os"

	"github.com/hherb/OpenHiker-sub005/pkg/concurrent"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/elevation"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
	"github.com/hherb/OpenHiker-sub005/pkg/store"
)

// RoutableWayTypes is the fixed allow-list of way types promoted into the
// trail graph. Everything else in the extract is discarded.
var RoutableWayTypes = map[string]bool{
	"path":          true,
	"footway":       true,
	"track":         true,
	"bridleway":     true,
	"steps":         true,
	"cycleway":      true,
	"via_ferrata":   true,
	"pedestrian":    true,
	"living_street": true,
	"unclassified":  true,
	"service":       true,
	"residential":   true,
}

// Progress reports build phase, fractional completion of that phase and the
// running node/edge counts. Purely observational, no effect on the graph.
type Progress func(phase string, fraction float64, nodes, edges int)

const elevationWorkers = 4

type GraphBuilder struct {
	topo     TopologySource
	elev     elevation.Source
	profile  costmodel.Mode
	progress Progress
}

func NewGraphBuilder(topo TopologySource, elev elevation.Source, profile costmodel.Mode, progress Progress) *GraphBuilder {
	if progress == nil {
		progress = func(string, float64, int, int) {}
	}
	return &GraphBuilder{
		topo:     topo,
		elev:     elev,
		profile:  profile,
		progress: progress,
	}
}

// Build creates the region store at outputPath. On error or cancellation
// the partial store directory is removed before returning.
func (b *GraphBuilder) Build(ctx context.Context, outputPath, regionID string) (err error) {
	b.progress("topology", 0, 0, 0)
	topo, err := b.topo.Load(ctx)
	if err != nil {
		return err
	}
	b.progress("topology", 1, 0, 0)

	ways := make([]TopologyWay, 0, len(topo.Ways))
	for _, way := range topo.Ways {
		if RoutableWayTypes[way.WayType] && len(way.NodeIDs) >= 2 && wayNodesKnown(topo, way) {
			ways = append(ways, way)
		}
	}

	junctions, graphID := findJunctions(ways)

	w, err := store.CreateRegion(outputPath, regionID)
	if err != nil {
		return err
	}
	defer func() {
		w.Close()
		if err != nil {
			os.RemoveAll(outputPath)
		}
	}()

	nodes, err := b.resolveNodes(ctx, topo, junctions)
	if err != nil {
		return err
	}

	if err = b.writeNodes(ctx, w, nodes); err != nil {
		return err
	}
	if err = b.writeEdges(ctx, w, topo, ways, graphID, nodes); err != nil {
		return err
	}

	b.progress("finalize", 0, w.NodeCount(), w.EdgeCount())
	if err = w.Finalize(b.profile.String()); err != nil {
		return err
	}
	b.progress("finalize", 1, w.NodeCount(), w.EdgeCount())
	return nil
}

func wayNodesKnown(topo *Topology, way TopologyWay) bool {
	for _, id := range way.NodeIDs {
		if _, ok := topo.Nodes[id]; !ok {
			// clipped extract, the way leaves the region
			return false
		}
	}
	return true
}

// findJunctions promotes a topology node to a graph node when it is used by
// two or more surviving ways or is an endpoint of any surviving way. Graph
// ids are assigned in way-walk order, which keeps builds deterministic for
// identical input.
func findJunctions(ways []TopologyWay) (junctions []int64, graphID map[int64]int32) {
	useCount := make(map[int64]int)
	endpoint := make(map[int64]bool)
	for _, way := range ways {
		for _, id := range way.NodeIDs {
			useCount[id]++
		}
		endpoint[way.NodeIDs[0]] = true
		endpoint[way.NodeIDs[len(way.NodeIDs)-1]] = true
	}

	graphID = make(map[int64]int32)
	for _, way := range ways {
		for _, id := range way.NodeIDs {
			if _, ok := graphID[id]; ok {
				continue
			}
			if useCount[id] >= 2 || endpoint[id] {
				graphID[id] = int32(len(junctions))
				junctions = append(junctions, id)
			}
		}
	}
	return junctions, graphID
}

type elevationJob struct {
	idx int
	lat float64
	lon float64
}

type elevationResult struct {
	idx  int
	elev float64
	ok   bool
}

// resolveNodes looks up elevation for every junction through the worker
// pool. A lookup miss stores the node without elevation, it never aborts
// the build.
func (b *GraphBuilder) resolveNodes(ctx context.Context, topo *Topology, junctions []int64) ([]datastructure.Node, error) {
	b.progress("elevation", 0, 0, 0)

	nodes := make([]datastructure.Node, len(junctions))
	for i, osmID := range junctions {
		tn := topo.Nodes[osmID]
		nodes[i] = datastructure.Node{
			ID:  int32(i),
			Lat: tn.Lat,
			Lon: tn.Lon,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workers := concurrent.NewWorkerPool[elevationJob, elevationResult](elevationWorkers, len(nodes))
	for i := range nodes {
		workers.AddJob(elevationJob{idx: i, lat: nodes[i].Lat, lon: nodes[i].Lon})
	}
	workers.Close()
	workers.Start(func(job elevationJob) elevationResult {
		elev, ok := b.elev.Lookup(job.lat, job.lon)
		return elevationResult{idx: job.idx, elev: elev, ok: ok}
	})
	workers.Wait()
	for res := range workers.CollectResults() {
		if res.ok {
			nodes[res.idx].Elevation = res.elev
			nodes[res.idx].HasElevation = true
		}
	}

	b.progress("elevation", 1, len(nodes), 0)
	return nodes, ctx.Err()
}

func (b *GraphBuilder) writeNodes(ctx context.Context, w *store.Writer, nodes []datastructure.Node) error {
	b.progress("nodes", 0, 0, 0)
	for i, n := range nodes {
		if i%store.WriteBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.progress("nodes", float64(i)/float64(len(nodes)), i, 0)
		}
		if err := w.PutNode(n); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	b.progress("nodes", 1, len(nodes), 0)
	return nil
}

// writeEdges emits one edge per junction-to-junction segment of every way.
// Distance accumulates across interior points, gain/loss derive from the
// segment endpoint elevations and the reverse direction is costed with
// swapped gain/loss, or marked impassable on a one-way.
func (b *GraphBuilder) writeEdges(ctx context.Context, w *store.Writer, topo *Topology,
	ways []TopologyWay, graphID map[int64]int32, nodes []datastructure.Node) error {
	b.progress("edges", 0, len(nodes), 0)

	edgeID := int32(0)
	for wayIdx, way := range ways {
		if wayIdx%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.progress("edges", float64(wayIdx)/float64(len(ways)), len(nodes), int(edgeID))
		}

		segStart := -1
		for i, osmID := range way.NodeIDs {
			if _, ok := graphID[osmID]; !ok {
				continue
			}
			if segStart == -1 {
				segStart = i
				continue
			}

			edge := b.segmentEdge(topo, way, graphID, nodes, segStart, i, edgeID)
			if err := w.PutEdge(edge); err != nil {
				return err
			}
			edgeID++
			segStart = i
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	b.progress("edges", 1, len(nodes), int(edgeID))
	return nil
}

func (b *GraphBuilder) segmentEdge(topo *Topology, way TopologyWay, graphID map[int64]int32,
	nodes []datastructure.Node, segStart, segEnd int, edgeID int32) datastructure.Edge {
	fromID := graphID[way.NodeIDs[segStart]]
	toID := graphID[way.NodeIDs[segEnd]]

	distance := 0.0
	var geometry []datastructure.Coordinate
	for i := segStart; i < segEnd; i++ {
		a := topo.Nodes[way.NodeIDs[i]]
		bb := topo.Nodes[way.NodeIDs[i+1]]
		distance += geo.DistanceMeters(a.Lat, a.Lon, bb.Lat, bb.Lon)
		if i > segStart {
			geometry = append(geometry, datastructure.Coordinate{Lat: a.Lat, Lon: a.Lon})
		}
	}

	from := nodes[fromID]
	to := nodes[toID]
	gain, loss := 0.0, 0.0
	if from.HasElevation && to.HasElevation {
		diff := to.Elevation - from.Elevation
		gain = math.Max(diff, 0)
		loss = math.Max(-diff, 0)
	}

	cost := costmodel.EdgeCost(distance, gain, loss, way.Surface, way.WayType, way.SacScale, b.profile)
	reverseCost := costmodel.Impassable
	if !way.OneWay {
		reverseCost = costmodel.EdgeCost(distance, loss, gain, way.Surface, way.WayType, way.SacScale, b.profile)
	}

	return datastructure.Edge{
		ID:          edgeID,
		From:        fromID,
		To:          toID,
		Distance:    distance,
		Gain:        gain,
		Loss:        loss,
		Surface:     way.Surface,
		WayType:     way.WayType,
		SacScale:    way.SacScale,
		Visibility:  way.Visibility,
		Name:        way.Name,
		WayID:       way.ID,
		Cost:        cost,
		ReverseCost: reverseCost,
		OneWay:      way.OneWay,
		Geometry:    geometry,
	}
}
