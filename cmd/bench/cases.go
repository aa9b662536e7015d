// README: Bench cases: environment checks, a full ride lifecycle, concurrent accepts and location load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	tokens *infra.JWTVerifier
	run    string

	// rideID carries the ride created by the lifecycle case into later cases.
	rideID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required to mint test tokens (-jwt-secret or DISPATCH_JWT_SECRET)")
	}
	tokens, err := infra.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
		run:    uuid.NewString()[:8],
	}, nil
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK)
		}},
		{Name: "API: unauthenticated -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/rides/none", "", nil, http.StatusUnauthorized)
		}},
		{Name: "Ride: invalid pickup -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"pickup": map[string]float64{"lat": 123, "lng": 456}}
			return r.expect(ctx, http.MethodPost, "/api/rides", r.passenger("p-invalid"), body, http.StatusBadRequest)
		}},
		{Name: "Ride: full lifecycle", Run: lifecycle},
		{Name: "Ride: completed cannot transition", Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == "" {
				return Result{Status: statusSkip, Note: "lifecycle did not create a ride"}
			}
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/start", r.driver("d-life"), nil, http.StatusConflict)
		}},
		{Name: "Concurrency: multi accept same ride", Run: concurrentAccept},
		{Name: "Load: driver location updates", Run: locationLoad},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

type step struct {
	method, path, token string
	body                any
	want                int
}

func lifecycle(ctx context.Context, r *Runner) Result {
	start := time.Now()
	p := r.passenger("p-life")
	d := r.driver("d-life")

	if res := r.expect(ctx, http.MethodPut, "/api/drivers/me/location", d, point(25.0335, 121.5650), http.StatusOK); res.Status != statusPass {
		return res
	}
	id, res := r.createRide(ctx, p)
	if res.Status != statusPass {
		return res
	}
	r.rideID = id
	base := "/api/rides/" + id

	steps := []step{
		{http.MethodGet, "/api/drivers/me/match", d, nil, http.StatusOK},
		{http.MethodPost, base + "/accept", d, nil, http.StatusOK},
		{http.MethodPost, base + "/start", d, nil, http.StatusOK},
		{http.MethodPut, base + "/location", d, point(25.0400, 121.5600), http.StatusOK},
		{http.MethodPost, base + "/complete", d, nil, http.StatusOK},
		{http.MethodGet, base + "/fare", p, nil, http.StatusOK},
		{http.MethodGet, base + "/events", p, nil, http.StatusOK},
	}
	for _, s := range steps {
		if res := r.expect(ctx, s.method, s.path, s.token, s.body, s.want); res.Status != statusPass {
			res.Note = s.method + " " + s.path + ": " + res.Note
			return res
		}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: "ride=" + id}
}

// concurrentAccept races Concurrency drivers on one pending ride; exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	id, res := r.createRide(ctx, r.passenger("p-race"))
	if res.Status != statusPass {
		return res
	}
	path := "/api/rides/" + id + "/accept"

	var (
		wg        sync.WaitGroup
		succ      atomic.Int32
		conflicts atomic.Int32
	)
	ready := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		token := r.driver(fmt.Sprintf("d-race-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			code, _, err := r.call(ctx, http.MethodPost, path, token, nil)
			if err != nil {
				return
			}
			switch code {
			case http.StatusOK:
				succ.Add(1)
			case http.StatusConflict:
				conflicts.Add(1)
			}
		}()
	}
	close(ready)
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", succ.Load(), conflicts.Load())
	if succ.Load() != 1 || int(succ.Load()+conflicts.Load()) != r.cfg.Concurrency {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func locationLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		token := r.driver(fmt.Sprintf("d-load-%d", i))
		lat := 25.03 + float64(i)*0.0001
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.call(ctx, http.MethodPut, "/api/drivers/me/location", token, point(lat, 121.565))
				if err != nil || code != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) createRide(ctx context.Context, token string) (string, Result) {
	code, body, err := r.call(ctx, http.MethodPost, "/api/rides", token, map[string]any{"pickup": point(25.0330, 121.5654)})
	if err != nil {
		return "", Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusCreated {
		return "", Result{Status: statusFail, Note: fmt.Sprintf("create ride: status=%d body=%s", code, body)}
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", Result{Status: statusFail, Note: "create ride: no id in response"}
	}
	return created.ID, Result{Status: statusPass}
}

func (r *Runner) expect(ctx context.Context, method, path, token string, body any, want int) Result {
	start := time.Now()
	code, _, err := r.call(ctx, method, path, token, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	latency := time.Since(start)
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

// passenger and driver mint tokens whose ids are unique per run, so reruns
// against a persistent store do not trip the one-active-ride rule.
func (r *Runner) passenger(id string) string {
	return r.token(id, types.RolePassenger)
}

func (r *Runner) driver(id string) string {
	return r.token(id, types.RoleDriver)
}

func (r *Runner) token(id string, role types.Role) string {
	tok, err := r.tokens.Issue(types.Actor{ID: types.ID(id + "-" + r.run), Role: role}, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

func point(lat, lng float64) map[string]float64 {
	return map[string]float64{"lat": lat, "lng": lng}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
