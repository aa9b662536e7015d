// README: In-memory grid index; cells of fixed angular size with an id->cell map.
package geo

import (
	"context"
	"math"
	"sync"

	"dispatch/internal/types"
)

const (
	// DefaultCellDegrees is roughly 1.1 km of latitude per cell.
	DefaultCellDegrees = 0.01
	// Slightly under the true 111195 m so bounding boxes err on the large side.
	metersPerDegreeLat = 111000.0
)

type cell struct {
	row, col int
}

type entry struct {
	pos  types.Point
	cell cell
}

type bucket struct {
	cells map[cell]map[types.ID]struct{}
	items map[types.ID]entry
}

// MemoryIndex keeps one grid per Kind. Upsert and Remove are O(1); Nearby scans
// only the cells overlapping the query's bounding box and falls back to a full
// scan when that box would touch more cells than are populated.
type MemoryIndex struct {
	mu      sync.RWMutex
	cellDeg float64
	rows    int
	cols    int
	buckets map[Kind]*bucket
}

func NewMemoryIndex(cellDegrees float64) *MemoryIndex {
	if cellDegrees <= 0 || cellDegrees > 90 {
		cellDegrees = DefaultCellDegrees
	}
	// Snap the cell size so columns tile the full circle of longitude.
	cols := int(math.Round(360 / cellDegrees))
	cellDegrees = 360 / float64(cols)
	return &MemoryIndex{
		cellDeg: cellDegrees,
		rows:    int(math.Ceil(180 / cellDegrees)),
		cols:    cols,
		buckets: make(map[Kind]*bucket),
	}
}

func (m *MemoryIndex) cellOf(p types.Point) cell {
	row := int(math.Floor((p.Lat + 90) / m.cellDeg))
	col := int(math.Floor((p.Lng + 180) / m.cellDeg))
	if row >= m.rows {
		row = m.rows - 1
	}
	if col >= m.cols {
		col = 0 // +180 and -180 are the same meridian
	}
	return cell{row: row, col: col}
}

func (m *MemoryIndex) bucket(kind Kind) *bucket {
	b, ok := m.buckets[kind]
	if !ok {
		b = &bucket{
			cells: make(map[cell]map[types.ID]struct{}),
			items: make(map[types.ID]entry),
		}
		m.buckets[kind] = b
	}
	return b
}

func (m *MemoryIndex) Upsert(_ context.Context, kind Kind, id types.ID, p types.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c := m.cellOf(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(kind)
	if old, ok := b.items[id]; ok && old.cell != c {
		b.detach(id, old.cell)
	}
	members, ok := b.cells[c]
	if !ok {
		members = make(map[types.ID]struct{})
		b.cells[c] = members
	}
	members[id] = struct{}{}
	b.items[id] = entry{pos: p, cell: c}
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, kind Kind, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[kind]
	if !ok {
		return nil
	}
	if old, ok := b.items[id]; ok {
		b.detach(id, old.cell)
		delete(b.items, id)
	}
	return nil
}

func (b *bucket) detach(id types.ID, c cell) {
	members := b.cells[c]
	delete(members, id)
	if len(members) == 0 {
		delete(b.cells, c)
	}
}

// Position returns the indexed position of id, if any.
func (m *MemoryIndex) Position(kind Kind, id types.ID) (types.Point, bool) {
	hits := m.within(kind, center, radiusMeters)
	if pred != nil {
		kept := hits[:0]
		for _, h := range hits {
			if pred(h.ID) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	sortHits(hits)
	return hits, nil
}

// within collects the entries inside the radius. Predicates run after the
// index lock is released, so they may block or call back into the index.
func (m *MemoryIndex) within(kind Kind, center types.Point, radiusMeters float64) []Hit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0)
	b, ok := m.buckets[kind]
	if !ok {
		return hits
	}
	consider := func(id types.ID, e entry) {
		if d := types.DistanceMeters(center, e.pos); d <= radiusMeters {
			hits = append(hits, Hit{ID: id, DistanceMeters: d})
		}
	}

	cells, bounded := m.coveringCells(center, radiusMeters)
	if !bounded || len(cells) > len(b.cells) {
		for id, e := range b.items {
			consider(id, e)
		}
	} else {
		for _, c := range cells {
			for id := range b.cells[c] {
				consider(id, b.items[id])
			}
		}
	}
	return hits
}

// coveringCells lists the cells intersecting the bounding box of the query
// circle. It reports false when the box reaches a pole or spans the globe, in
// which case callers scan everything.
func (m *MemoryIndex) coveringCells(center types.Point, radiusMeters float64) ([]cell, bool) {
	dLat := radiusMeters / metersPerDegreeLat
	if center.Lat+dLat >= 90 || center.Lat-dLat <= -90 {
		return nil, false
	}
	// The widest longitude span of the circle occurs at the box edge closest to a pole.
	maxAbsLat := math.Max(math.Abs(center.Lat-dLat), math.Abs(center.Lat+dLat))
	cosLat := math.Cos(maxAbsLat * math.Pi / 180)
	if cosLat <= 0 {
		return nil, false
	}
	dLng := 1.05 * dLat / cosLat
	if dLng >= 180 {
		return nil, false
	}

	minRow := m.cellOf(types.Point{Lat: center.Lat - dLat, Lng: 0}).row
	maxRow := m.cellOf(types.Point{Lat: center.Lat + dLat, Lng: 0}).row
	minCol := int(math.Floor((center.Lng - dLng + 180) / m.cellDeg))
	maxCol := int(math.Floor((center.Lng + dLng + 180) / m.cellDeg))

	span := (maxRow - minRow + 1) * (maxCol - minCol + 1)
	if span <= 0 || maxCol-minCol+1 >= m.cols {
		return nil, false
	}
	cells := make([]cell, 0, span)
	for r := minRow; r <= maxRow; r++ {
		for c := minCol; c <= maxCol; c++ {
			cells = append(cells, cell{row: r, col: ((c % m.cols) + m.cols) % m.cols})
		}
	}
	return cells, true
}
