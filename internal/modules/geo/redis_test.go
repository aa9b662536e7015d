package geo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

func TestRedisIndex_Nearby(t *testing.T) {
	addr := os.Getenv("DISPATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISPATCH_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	idx := NewRedisIndex(rdb)
	kind := Kind(fmt.Sprintf("test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { rdb.Del(context.Background(), geoKey(kind)) })

	center := types.Point{Lat: 25.0330, Lng: 121.5650}
	mustUpsert(t, idx, kind, "near", types.Point{Lat: 25.0340, Lng: 121.5650})
	mustUpsert(t, idx, kind, "mid", types.Point{Lat: 25.0500, Lng: 121.5650})
	mustUpsert(t, idx, kind, "far", types.Point{Lat: 25.2000, Lng: 121.5650})

	hits, err := idx.Nearby(ctx, kind, center, 5000, nil)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if got := fmt.Sprint(ids(hits)); got != "[near mid]" {
		t.Fatalf("unexpected hits %s", got)
	}

	if err := idx.Remove(ctx, kind, "near"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	hits, err = idx.Nearby(ctx, kind, center, 5000, nil)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mid" {
		t.Fatalf("unexpected hits after remove %v", hits)
	}
}

func TestWithinSearchRadius(t *testing.T) {
	tests := []struct {
		name   string
		d      float64
		radius float64
		want   bool
	}{
		{"inside", 400, 500, true},
		{"on edge", 500, 500, true},
		{"quantized just past edge", 500.6, 500, true},
		{"outside", 502, 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinSearchRadius(tt.d, tt.radius); got != tt.want {
				t.Errorf("withinSearchRadius(%v, %v) = %v, want %v", tt.d, tt.radius, got, tt.want)
			}
		})
	}
}

func TestRedisIndex_KeepsHitOnRadiusEdge(t *testing.T) {
	addr := os.Getenv("DISPATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISPATCH_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	idx := NewRedisIndex(rdb)
	kind := Kind(fmt.Sprintf("test_edge_%d", time.Now().UnixNano()))
	t.Cleanup(func() { rdb.Del(context.Background(), geoKey(kind)) })

	center := types.Point{Lat: 25.0330, Lng: 121.5650}
	edge := types.Point{Lat: 25.0412345, Lng: 121.5712345}
	mustUpsert(t, idx, kind, "edge", edge)

	hits, err := idx.Nearby(ctx, kind, center, types.DistanceMeters(center, edge), nil)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "edge" {
		t.Fatalf("expected the edge hit to survive quantization, got %v", hits)
	}
}
