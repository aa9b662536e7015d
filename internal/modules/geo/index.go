// README: Spatial lookup of drivers and rides by coordinate with radius queries.
package geo

import (
	"context"
	"fmt"
	"sort"

	"dispatch/internal/types"
)

// Kind namespaces the entities held by an index.
type Kind string

const (
	KindDriver      Kind = "driver"
	KindPendingRide Kind = "pending_ride"
	KindActiveRide  Kind = "active_ride"
)

// Hit is one radius-query result.
type Hit struct {
	ID             types.ID `json:"id"`
	DistanceMeters float64  `json:"distance_meters"`
}

// Predicate filters hits by id. A nil Predicate accepts everything.
// Implementations call it with no index lock held.
type Predicate func(id types.ID) bool

// Index is implemented by MemoryIndex and RedisIndex.
//
// Nearby returns hits ordered by ascending distance from center, ties broken by
// ascending id.
type Index interface {
	Upsert(ctx context.Context, kind Kind, id types.ID, p types.Point) error
	Remove(ctx context.Context, kind Kind, id types.ID) error
	Nearby(ctx context.Context, kind Kind, center types.Point, radiusMeters float64, pred Predicate) ([]Hit, error)
}

func validateQuery(center types.Point, radiusMeters float64) error {
	if err := center.Validate(); err != nil {
		return err
	}
	if radiusMeters < 0 || radiusMeters != radiusMeters {
		return fmt.Errorf("%w: radius must be non-negative", types.ErrValidation)
	}
	return nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].ID < hits[j].ID
	})
}
