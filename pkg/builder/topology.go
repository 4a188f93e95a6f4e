package builder

import (
	"context"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/hherb/OpenHiker-sub005/domain"
)

type TopologyNode struct {
	ID  int64
	Lat float64
	Lon float64
}

// TopologyWay is one raw way: an ordered list of node references plus the
// tags the engine cares about. A reversed one-way ("oneway=-1") arrives here
// already flipped into node order.
type TopologyWay struct {
	ID         int64
	NodeIDs    []int64
	WayType    string
	Surface    string
	SacScale   string
	Visibility string
	Name       string
	OneWay     bool
}

type Topology struct {
	Nodes map[int64]TopologyNode
	Ways  []TopologyWay
}

// TopologySource supplies the raw node and way tables for a region.
// Injected into the graph builder, so tests and other ingest formats can
// replace the OSM reader.
type TopologySource interface {
	Load(ctx context.Context) (*Topology, error)
}

// OSMTopologySource reads an .osm.pbf extract.
type OSMTopologySource struct {
	path string
}

func NewOSMTopologySource(path string) *OSMTopologySource {
	return &OSMTopologySource{path: path}
}

func (s *OSMTopologySource) Load(ctx context.Context) (*Topology, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, domain.WrapErrorf(err, domain.ErrStoreIO, "open osm extract %s", s.path)
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, 3)
	defer scanner.Close()

	topo := &Topology{
		Nodes: make(map[int64]TopologyNode),
	}

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			topo.Nodes[int64(o.ID)] = TopologyNode{
				ID:  int64(o.ID),
				Lat: o.Lat,
				Lon: o.Lon,
			}
		case *osm.Way:
			tags := o.TagMap()
			wayType, ok := tags["highway"]
			if !ok {
				continue
			}

			nodeIDs := make([]int64, len(o.Nodes))
			for i, wn := range o.Nodes {
				nodeIDs[i] = int64(wn.ID)
			}

			oneWay, reversed := parseOneWay(tags["oneway"])
			if reversed {
				for i, j := 0, len(nodeIDs)-1; i < j; i, j = i+1, j-1 {
					nodeIDs[i], nodeIDs[j] = nodeIDs[j], nodeIDs[i]
				}
			}

			topo.Ways = append(topo.Ways, TopologyWay{
				ID:         int64(o.ID),
				NodeIDs:    nodeIDs,
				WayType:    wayType,
				Surface:    tags["surface"],
				SacScale:   tags["sac_scale"],
				Visibility: tags["trail_visibility"],
				Name:       tags["name"],
				OneWay:     oneWay,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapErrorf(err, domain.ErrStoreIO, "scan osm extract %s", s.path)
	}

	return topo, nil
}

func parseOneWay(value string) (oneWay bool, reversed bool) {
	switch value {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return true, true
	}
	return false, false
}
