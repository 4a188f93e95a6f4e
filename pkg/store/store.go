// Package store persists one region graph as a self-contained pebble
// database: node table, edge table with packed-geometry blobs, h3 cell
// buckets for spatial snapping and a flat metadata key/value table. A region
// is written once by the graph builder and read-only afterwards.
package store

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/uber/h3-go/v4"
	"golang.org/x/exp/slices"

	"github.com/hherb/OpenHiker-sub005/domain"
	"github.com/hherb/OpenHiker-sub005/pkg/concurrent"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
)

const (
	// WriteBatchSize is how many records go into one pebble batch before it
	// is committed. Bounds both memory and the crash-containment window.
	WriteBatchSize = 10000

	// DefaultSnapRadiusMeters bounds the nearest-node search when snapping a
	// user-chosen point onto the graph.
	DefaultSnapRadiusMeters = 500.0

	cellResolution = 9
)

const (
	MetaRegionID  = "region_id"
	MetaProfile   = "profile"
	MetaNodeCount = "node_count"
	MetaEdgeCount = "edge_count"
	MetaBuildDate = "build_date"
)

var (
	metaPrefix = []byte("m!")
	nodePrefix = []byte("n!")
	edgePrefix = []byte("e!")
	cellPrefix = []byte("c!")
)

func metaKey(key string) []byte {
	return append(append([]byte{}, metaPrefix...), key...)
}

func recordKey(prefix []byte, id int32) []byte {
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(id))
	return key
}

func cellKey(cell h3.Cell) []byte {
	return append(append([]byte{}, cellPrefix...), cell.String()...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte{}, prefix...)
	upper[len(upper)-1]++
	return upper
}

// Writer creates a region store. All writes go through batches committed
// every WriteBatchSize records; on any failure the caller closes the writer
// and deletes the partially written directory.
type Writer struct {
	db      *pebble.DB
	batch   *pebble.Batch
	pending int

	nodeCount int
	edgeCount int
	cells     map[h3.Cell][]int32
	path      string
}

func CreateRegion(path, regionID string) (*Writer, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, domain.WrapErrorf(err, domain.ErrStoreIO, "create region store %s", path)
	}

	w := &Writer{
		db:    db,
		batch: db.NewBatch(),
		cells: make(map[h3.Cell][]int32),
		path:  path,
	}
	if err := w.PutMetadata(MetaRegionID, regionID); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) set(key, value []byte) error {
	if err := w.batch.Set(key, value, nil); err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "batch write to %s", w.path)
	}
	w.pending++
	if w.pending >= WriteBatchSize {
		return w.Flush()
	}
	return nil
}

// Flush commits the current batch. The builder calls it between build
// phases so a cancellation check never straddles uncommitted work.
func (w *Writer) Flush() error {
	if w.pending == 0 {
		return nil
	}
	if err := w.batch.Commit(pebble.Sync); err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "commit batch to %s", w.path)
	}
	w.batch = w.db.NewBatch()
	w.pending = 0
	return nil
}

func (w *Writer) PutNode(n datastructure.Node) error {
	enc, err := encodeNode(n)
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "encode node %d", n.ID)
	}
	if err := w.set(recordKey(nodePrefix, n.ID), enc); err != nil {
		return err
	}

	cell := h3.LatLngToCell(h3.NewLatLng(n.Lat, n.Lon), cellResolution)
	w.cells[cell] = append(w.cells[cell], n.ID)
	w.nodeCount++
	return nil
}

func (w *Writer) PutEdge(e datastructure.Edge) error {
	enc, err := encodeEdge(e)
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "encode edge %d", e.ID)
	}
	if err := w.set(recordKey(edgePrefix, e.ID), enc); err != nil {
		return err
	}
	w.edgeCount++
	return nil
}

func (w *Writer) PutMetadata(key, value string) error {
	return w.set(metaKey(key), []byte(value))
}

type cellJob struct {
	key []byte
	val []byte
}

// Finalize writes the spatial cell buckets and the closing metadata, then
// syncs the store. The writer is still open afterwards; Close releases it.
func (w *Writer) Finalize(profile string) error {
	if err := w.Flush(); err != nil {
		return err
	}

	workers := concurrent.NewWorkerPool[cellJob, error](4, len(w.cells))
	for cell, ids := range w.cells {
		enc, err := encodeCell(ids)
		if err != nil {
			return domain.WrapErrorf(err, domain.ErrStoreIO, "encode cell bucket")
		}
		workers.AddJob(cellJob{key: cellKey(cell), val: enc})
	}
	workers.Close()
	workers.Start(func(job cellJob) error {
		return w.db.Set(job.key, job.val, pebble.Sync)
	})
	workers.Wait()
	for err := range workers.CollectResults() {
		if err != nil {
			return domain.WrapErrorf(err, domain.ErrStoreIO, "write cell bucket to %s", w.path)
		}
	}

	if err := w.PutMetadata(MetaProfile, profile); err != nil {
		return err
	}
	if err := w.PutMetadata(MetaNodeCount, strconv.Itoa(w.nodeCount)); err != nil {
		return err
	}
	if err := w.PutMetadata(MetaEdgeCount, strconv.Itoa(w.edgeCount)); err != nil {
		return err
	}
	if err := w.PutMetadata(MetaBuildDate, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.db.Flush(); err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "sync region store %s", w.path)
	}
	return nil
}

func (w *Writer) NodeCount() int { return w.nodeCount }
func (w *Writer) EdgeCount() int { return w.edgeCount }

func (w *Writer) Close() error {
	return w.db.Close()
}

// GraphStore is a region graph opened read-only. Nodes and edges are loaded
// fully into memory with a directed adjacency list; the pebble handle stays
// open for the spatial cell buckets used by NearestNode. Concurrent
// read-only use is safe.
type GraphStore struct {
	db    *pebble.DB
	meta  datastructure.RegionMetadata
	nodes []datastructure.Node
	edges []datastructure.Edge
	adj   [][]datastructure.EdgeRef
}

func OpenRegion(path string) (*GraphStore, error) {
	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		return nil, domain.WrapErrorf(err, domain.ErrStoreIO, "open region store %s", path)
	}

	g := &GraphStore{db: db}
	if err := g.loadMetadata(); err != nil {
		db.Close()
		return nil, err
	}
	if err := g.loadNodes(); err != nil {
		db.Close()
		return nil, err
	}
	if err := g.loadEdges(); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

func (g *GraphStore) getMeta(key string) (string, error) {
	val, closer, err := g.db.Get(metaKey(key))
	if err == pebble.ErrNotFound {
		return "", domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "metadata key %s missing", key)
	}
	if err != nil {
		return "", domain.WrapErrorf(err, domain.ErrStoreIO, "read metadata key %s", key)
	}
	defer closer.Close()
	return string(append([]byte{}, val...)), nil
}

func (g *GraphStore) loadMetadata() error {
	regionID, err := g.getMeta(MetaRegionID)
	if err != nil {
		return err
	}
	profile, err := g.getMeta(MetaProfile)
	if err != nil {
		return err
	}
	nodeCountStr, err := g.getMeta(MetaNodeCount)
	if err != nil {
		return err
	}
	edgeCountStr, err := g.getMeta(MetaEdgeCount)
	if err != nil {
		return err
	}
	buildDate, err := g.getMeta(MetaBuildDate)
	if err != nil {
		return err
	}

	nodeCount, err := strconv.Atoi(nodeCountStr)
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreCorrupted, "invalid node_count %q", nodeCountStr)
	}
	edgeCount, err := strconv.Atoi(edgeCountStr)
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreCorrupted, "invalid edge_count %q", edgeCountStr)
	}

	g.meta = datastructure.RegionMetadata{
		RegionID:  regionID,
		Profile:   profile,
		NodeCount: nodeCount,
		EdgeCount: edgeCount,
		BuildDate: buildDate,
	}
	return nil
}

func (g *GraphStore) loadNodes() error {
	g.nodes = make([]datastructure.Node, g.meta.NodeCount)
	seen := 0

	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: nodePrefix,
		UpperBound: prefixUpperBound(nodePrefix),
	})
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "iterate node table")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		node, err := decodeNode(iter.Value())
		if err != nil {
			return domain.WrapErrorf(err, domain.ErrStoreCorrupted, "decode node record")
		}
		if int(node.ID) >= len(g.nodes) {
			return domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "node id %d exceeds node_count %d", node.ID, g.meta.NodeCount)
		}
		g.nodes[node.ID] = node
		seen++
	}
	if seen != g.meta.NodeCount {
		return domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "node table has %d records, metadata says %d", seen, g.meta.NodeCount)
	}
	return nil
}

func (g *GraphStore) loadEdges() error {
	g.edges = make([]datastructure.Edge, g.meta.EdgeCount)
	g.adj = make([][]datastructure.EdgeRef, g.meta.NodeCount)
	seen := 0

	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: edgePrefix,
		UpperBound: prefixUpperBound(edgePrefix),
	})
	if err != nil {
		return domain.WrapErrorf(err, domain.ErrStoreIO, "iterate edge table")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		edge, err := decodeEdge(iter.Value())
		if err != nil {
			return domain.WrapErrorf(err, domain.ErrStoreCorrupted, "decode edge record")
		}
		if int(edge.ID) >= len(g.edges) {
			return domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "edge id %d exceeds edge_count %d", edge.ID, g.meta.EdgeCount)
		}
		if int(edge.From) >= len(g.nodes) || int(edge.To) >= len(g.nodes) {
			return domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "edge %d references missing node", edge.ID)
		}
		g.edges[edge.ID] = edge
		// both traversal directions always exist, one may carry the
		// impassable sentinel
		g.adj[edge.From] = append(g.adj[edge.From], datastructure.EdgeRef{EdgeID: edge.ID, Forward: true})
		g.adj[edge.To] = append(g.adj[edge.To], datastructure.EdgeRef{EdgeID: edge.ID, Forward: false})
		seen++
	}
	if seen != g.meta.EdgeCount {
		return domain.WrapErrorf(nil, domain.ErrStoreCorrupted, "edge table has %d records, metadata says %d", seen, g.meta.EdgeCount)
	}
	return nil
}

func (g *GraphStore) Metadata() datastructure.RegionMetadata {
	return g.meta
}

func (g *GraphStore) Node(id int32) datastructure.Node {
	return g.nodes[id]
}

func (g *GraphStore) Edge(id int32) datastructure.Edge {
	return g.edges[id]
}

func (g *GraphStore) OutEdges(id int32) []datastructure.EdgeRef {
	return g.adj[id]
}

func (g *GraphStore) DirectedEdge(ref datastructure.EdgeRef) datastructure.DirectedEdge {
	e := g.edges[ref.EdgeID]
	return e.Directed(ref.Forward)
}

// NearestNode snaps a coordinate to the nearest graph node within
// radiusMeters, reading candidates from the h3 cell buckets.
func (g *GraphStore) NearestNode(lat, lon, radiusMeters float64) (datastructure.Node, error) {
	var candidates []int32
	for _, cell := range kRingIndexesArea(lat, lon, radiusMeters/1000.0) {
		val, closer, err := g.db.Get(cellKey(cell))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return datastructure.Node{}, domain.WrapErrorf(err, domain.ErrStoreIO, "read cell bucket")
		}
		ids, decodeErr := decodeCell(val)
		closer.Close()
		if decodeErr != nil {
			return datastructure.Node{}, domain.WrapErrorf(decodeErr, domain.ErrStoreCorrupted, "decode cell bucket")
		}
		candidates = append(candidates, ids...)
	}

	// cell iteration order varies, candidate order must not
	slices.Sort(candidates)

	best := int32(-1)
	bestDist := math.Inf(1)
	for _, id := range candidates {
		node := g.nodes[id]
		dist := geo.DistanceMeters(lat, lon, node.Lat, node.Lon)
		if dist < bestDist {
			best = id
			bestDist = dist
		}
	}
	if best < 0 || bestDist > radiusMeters {
		return datastructure.Node{}, domain.WrapErrorf(nil, domain.ErrPointNotOnTrail,
			"no trail node within %.0fm of (%f, %f)", radiusMeters, lat, lon)
	}
	return g.nodes[best], nil
}

func (g *GraphStore) Close() error {
	return g.db.Close()
}

/*
*
  - https://observablehq.com/@nrabinowitz/h3-radius-lookup?collection=@nrabinowitz/h3
    grid disk of cells around (lat, lon) covering searchRadiusKm
*/
func kRingIndexesArea(lat, lon, searchRadiusKm float64) []h3.Cell {
	home := h3.NewLatLng(lat, lon)
	origin := h3.LatLngToCell(home, cellResolution)
	originArea := h3.CellAreaKm2(origin)
	searchArea := math.Pi * searchRadiusKm * searchRadiusKm

	radius := 0
	diskArea := originArea

	for diskArea < searchArea {
		radius++
		cellCount := float64(3*radius*(radius+1) + 1)
		diskArea = cellCount * originArea
	}

	return h3.GridDisk(origin, radius)
}
