package store

import (
	"github.com/DataDog/zstd"
	kbinary "github.com/kelindar/binary"
	"github.com/twpayne/go-polyline"

	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
)

type nodeRecord struct {
	ID           int32
	Lat          float64
	Lon          float64
	Elevation    float64
	HasElevation bool
}

type edgeRecord struct {
	ID          int32
	From        int32
	To          int32
	Distance    float64
	Gain        float64
	Loss        float64
	Surface     string
	WayType     string
	SacScale    string
	Visibility  string
	Name        string
	WayID       int64
	Cost        float64
	ReverseCost float64
	OneWay      bool
	Geometry    []byte // polyline-packed interior shape points
}

func packGeometry(coords []datastructure.Coordinate) []byte {
	if len(coords) == 0 {
		return nil
	}
	pairs := make([][]float64, len(coords))
	for i, c := range coords {
		pairs[i] = []float64{c.Lat, c.Lon}
	}
	return polyline.EncodeCoords(pairs)
}

func unpackGeometry(packed []byte) ([]datastructure.Coordinate, error) {
	if len(packed) == 0 {
		return nil, nil
	}
	pairs, _, err := polyline.DecodeCoords(packed)
	if err != nil {
		return nil, err
	}
	coords := make([]datastructure.Coordinate, len(pairs))
	for i, p := range pairs {
		coords[i] = datastructure.Coordinate{Lat: p[0], Lon: p[1]}
	}
	return coords, nil
}

func encodeNode(n datastructure.Node) ([]byte, error) {
	return kbinary.Marshal(nodeRecord{
		ID:           n.ID,
		Lat:          n.Lat,
		Lon:          n.Lon,
		Elevation:    n.Elevation,
		HasElevation: n.HasElevation,
	})
}

func decodeNode(raw []byte) (datastructure.Node, error) {
	var rec nodeRecord
	if err := kbinary.Unmarshal(raw, &rec); err != nil {
		return datastructure.Node{}, err
	}
	return datastructure.Node{
		ID:           rec.ID,
		Lat:          rec.Lat,
		Lon:          rec.Lon,
		Elevation:    rec.Elevation,
		HasElevation: rec.HasElevation,
	}, nil
}

// edges carry the packed-geometry blob, so their records are zstd-compressed
func encodeEdge(e datastructure.Edge) ([]byte, error) {
	raw, err := kbinary.Marshal(edgeRecord{
		ID:          e.ID,
		From:        e.From,
		To:          e.To,
		Distance:    e.Distance,
		Gain:        e.Gain,
		Loss:        e.Loss,
		Surface:     e.Surface,
		WayType:     e.WayType,
		SacScale:    e.SacScale,
		Visibility:  e.Visibility,
		Name:        e.Name,
		WayID:       e.WayID,
		Cost:        e.Cost,
		ReverseCost: e.ReverseCost,
		OneWay:      e.OneWay,
		Geometry:    packGeometry(e.Geometry),
	})
	if err != nil {
		return nil, err
	}

	var compressed []byte
	return zstd.Compress(compressed, raw)
}

func decodeEdge(compressed []byte) (datastructure.Edge, error) {
	var raw []byte
	raw, err := zstd.Decompress(raw, compressed)
	if err != nil {
		return datastructure.Edge{}, err
	}

	var rec edgeRecord
	if err := kbinary.Unmarshal(raw, &rec); err != nil {
		return datastructure.Edge{}, err
	}
	geometry, err := unpackGeometry(rec.Geometry)
	if err != nil {
		return datastructure.Edge{}, err
	}
	return datastructure.Edge{
		ID:          rec.ID,
		From:        rec.From,
		To:          rec.To,
		Distance:    rec.Distance,
		Gain:        rec.Gain,
		Loss:        rec.Loss,
		Surface:     rec.Surface,
		WayType:     rec.WayType,
		SacScale:    rec.SacScale,
		Visibility:  rec.Visibility,
		Name:        rec.Name,
		WayID:       rec.WayID,
		Cost:        rec.Cost,
		ReverseCost: rec.ReverseCost,
		OneWay:      rec.OneWay,
		Geometry:    geometry,
	}, nil
}

func encodeCell(nodeIDs []int32) ([]byte, error) {
	return kbinary.Marshal(nodeIDs)
}

func decodeCell(raw []byte) ([]int32, error) {
	var ids []int32
	if err := kbinary.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
