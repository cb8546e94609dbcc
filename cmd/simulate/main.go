package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfirst/availability-engine/internal/config"
	"github.com/healthfirst/availability-engine/internal/db"
)

// The simulator hammers the HTTP API with concurrent window creation for
// a small set of providers and dates (to provoke schedule-lock and
// time-conflict contention), concurrent slot bookings, and slot listing,
// then reports success/conflict/error counts and latency percentiles.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CreateRatio float64
	BookRatio   float64
	ListRatio   float64
	SlotLimit   int
	PostgresDSN string
}

type DataPool struct {
	Providers []uuid.UUID
	Patients  []uuid.UUID
	Slots     []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	CreateWindow OperationMetrics
	BookSlot     OperationMetrics
	ListSlots    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d create=%.2f book=%.2f list=%.2f",
		cfg.Duration, cfg.Workers, cfg.CreateRatio, cfg.BookRatio, cfg.ListRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d providers, %d slots", len(dataPool.Providers), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		CreateRatio: getFloat("SIM_CREATE_RATIO", 0.4),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.4),
		ListRatio:   getFloat("SIM_LIST_RATIO", 0.2),
		SlotLimit:   getInt("SIM_SLOT_LIMIT", 2400),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	total := cfg.CreateRatio + cfg.BookRatio + cfg.ListRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.BookRatio /= total
		cfg.ListRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM providers LIMIT 20
	`)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM appointment_slots
		WHERE status = 'available' AND slot_start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, id)
	}

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded, run cmd/seed first")
	}

	// patients are synthetic: booking only needs an opaque UUID
	for i := 0; i < 200; i++ {
		dataPool.Patients = append(dataPool.Patients, uuid.New())
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.CreateRatio:
				s.doCreateWindow(ctx, rng)
			case r < s.config.CreateRatio+s.config.BookRatio:
				s.doBookSlot(ctx, rng)
			default:
				s.doListSlots(ctx, rng)
			}
		}
	}
}

// doCreateWindow posts overlapping morning windows on a narrow date range
// so that many of them collide on purpose.
func (s *Simulator) doCreateWindow(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	date := time.Now().UTC().AddDate(0, 0, 30+rng.Intn(3)).Format("2006-01-02")
	startHour := 8 + rng.Intn(3)

	reqBody := map[string]any{
		"date":          date,
		"start_time":    fmt.Sprintf("%02d:00", startHour),
		"end_time":      fmt.Sprintf("%02d:00", startHour+2),
		"timezone":      "UTC",
		"slot_duration": 30,
	}
	body, _ := json.Marshal(reqBody)

	url := fmt.Sprintf("%s/providers/%s/availability", s.config.APIBaseURL, providerID)
	status, latency := s.post(ctx, "POST", url, body)

	s.metrics.CreateWindow.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doBookSlot(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Slots) == 0 {
		return
	}

	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	reqBody := map[string]string{
		"status":     "booked",
		"patient_id": patientID.String(),
	}
	body, _ := json.Marshal(reqBody)

	url := fmt.Sprintf("%s/slots/%s/status", s.config.APIBaseURL, slotID)
	status, latency := s.post(ctx, "PATCH", url, body)

	s.metrics.BookSlot.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]

	url := fmt.Sprintf("%s/providers/%s/slots", s.config.APIBaseURL, providerID)
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.ListSlots.Record(latency, false, false)
		return
	}
	drain(resp)

	s.metrics.ListSlots.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(ctx context.Context, method, url string, body []byte) (int, time.Duration) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, time.Since(start)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	drain(resp)

	return resp.StatusCode, latency
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("create_window", &s.metrics.CreateWindow)
	printOp("book_slot", &s.metrics.BookSlot)
	printOp("list_slots", &s.metrics.ListSlots)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-14s no operations\n", name)
		return
	}

	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-14s total=%d success=%d conflict=%d error=%d\n",
		name, total,
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
	)
	fmt.Printf("%-14s latency avg=%s min=%s max=%s p50=%s p95=%s\n",
		"", avg, min, max, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
