// README: Index backed by Redis GEO sets, one sorted set per Kind.
package geo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const (
	geoKeyPrefix = "dispatch:geo:"
	// Redis measures on a slightly larger sphere than types.DistanceMeters, so
	// the server-side search is widened and the result re-filtered locally.
	searchSlack = 1.01
	// quantizationMeters bounds the error of the 52-bit geohash coordinates
	// Redis hands back; hits up to this far past the radius are kept.
	quantizationMeters = 1.0
)

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{redis: client}
}

func geoKey(kind Kind) string {
	return geoKeyPrefix + string(kind)
}

func (s *RedisIndex) Upsert(ctx context.Context, kind Kind, id types.ID, p types.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.redis.GeoAdd(ctx, geoKey(kind), &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err(); err != nil {
		return fmt.Errorf("geoadd %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *RedisIndex) Remove(ctx context.Context, kind Kind, id types.ID) error {
	if err := s.redis.ZRem(ctx, geoKey(kind), string(id)).Err(); err != nil {
		return fmt.Errorf("zrem %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *RedisIndex) Nearby(ctx context.Context, kind Kind, center types.Point, radiusMeters float64, pred Predicate) ([]Hit, error) {
	if err := validateQuery(center, radiusMeters); err != nil {
		return nil, err
	}
	results, err := s.redis.GeoSearchLocation(ctx, geoKey(kind), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusMeters * searchSlack,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch %s: %w", kind, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id := types.ID(r.Name)
		d := types.DistanceMeters(center, types.Point{Lat: r.Latitude, Lng: r.Longitude})
		if !withinSearchRadius(d, radiusMeters) {
			continue
		}
		if pred != nil && !pred(id) {
			continue
		}
		hits = append(hits, Hit{ID: id, DistanceMeters: d})
	}
	sortHits(hits)
	return hits, nil
}

func withinSearchRadius(d, radiusMeters float64) bool {
	return d <= radiusMeters+quantizationMeters
}
