// Package elevation resolves terrain elevation for graph junctions. The
// lookup collaborator is injected into the graph builder; a per-call miss is
// tolerated and the junction is stored without elevation.
package elevation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Source answers elevation queries. The second return reports whether an
// elevation is known for the coordinate.
type Source interface {
	Lookup(lat, lon float64) (float64, bool)
}

const voidSample = -32768

// TileSource reads SRTM .hgt tiles (N47E011.hgt naming, big-endian int16
// samples on a square grid) from a directory. Tiles are cached in memory
// after the first read; a missing tile or a void sample is a lookup miss.
type TileSource struct {
	dir string

	mu    sync.Mutex
	tiles map[string][]byte
}

func NewTileSource(dir string) *TileSource {
	return &TileSource{
		dir:   dir,
		tiles: make(map[string][]byte),
	}
}

func tileName(lat, lon float64) string {
	latFloor := int(math.Floor(lat))
	lonFloor := int(math.Floor(lon))

	ns, ew := "N", "E"
	if latFloor < 0 {
		ns = "S"
		latFloor = -latFloor
	}
	if lonFloor < 0 {
		ew = "W"
		lonFloor = -lonFloor
	}
	return fmt.Sprintf("%s%02d%s%03d.hgt", ns, latFloor, ew, lonFloor)
}

func (t *TileSource) tile(name string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if raw, ok := t.tiles[name]; ok {
		return raw, raw != nil
	}

	raw, err := os.ReadFile(filepath.Join(t.dir, name))
	if err != nil {
		// negative-cache the miss, hikes cluster inside few tiles
		t.tiles[name] = nil
		return nil, false
	}
	t.tiles[name] = raw
	return raw, true
}

func (t *TileSource) Lookup(lat, lon float64) (float64, bool) {
	raw, ok := t.tile(tileName(lat, lon))
	if !ok {
		return 0, false
	}

	// SRTM1 tiles are 3601x3601 samples, SRTM3 1201x1201
	samples := int(math.Sqrt(float64(len(raw) / 2)))
	if samples*samples*2 != len(raw) || samples < 2 {
		return 0, false
	}

	latFrac := lat - math.Floor(lat)
	lonFrac := lon - math.Floor(lon)

	// row 0 is the northern edge of the tile
	row := int(math.Round((1 - latFrac) * float64(samples-1)))
	col := int(math.Round(lonFrac * float64(samples-1)))

	idx := (row*samples + col) * 2
	sample := int16(uint16(raw[idx])<<8 | uint16(raw[idx+1]))
	if sample == voidSample {
		return 0, false
	}
	return float64(sample), true
}

// StaticSource serves fixed elevations keyed by rounded coordinate. Used in
// tests and for synthetic regions.
type StaticSource struct {
	Samples map[[2]float64]float64
}

func (s *StaticSource) Lookup(lat, lon float64) (float64, bool) {
	elev, ok := s.Samples[[2]float64{lat, lon}]
	return elev, ok
}
