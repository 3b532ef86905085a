package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/slot-booking/internal/config"
	"github.com/clinicore/slot-booking/internal/db"
)

// simulate fires concurrent booking traffic at a running api-server and
// reports how the engine split the outcomes: one success per slot, the
// rest conflicts or lock-busy rejections.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	PatientLimit int
	SlotLimit    int
	HotSlotBias  float64 // share of requests aimed at a single hot slot
	PostgresDSN  string
	JWTSecret    string
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []uuid.UUID
	HotSlot  uuid.UUID
}

type Metrics struct {
	Total     int64
	Booked    int64
	Conflict  int64
	LockBusy  int64
	RateLimit int64
	Error     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&m.Booked, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	case http.StatusServiceUnavailable:
		atomic.AddInt64(&m.LockBusy, 1)
	case http.StatusTooManyRequests:
		atomic.AddInt64(&m.RateLimit, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95idx := len(latencies) * 95 / 100
	if p95idx >= len(latencies) {
		p95idx = len(latencies) - 1
	}
	p95 = latencies[p95idx]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d available slots, hot slot %s",
		len(pool.Patients), len(pool.Slots), pool.HotSlot)

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				patient := pool.Patients[rand.Intn(len(pool.Patients))]
				slot := pool.HotSlot
				if rand.Float64() > cfg.HotSlotBias {
					slot = pool.Slots[rand.Intn(len(pool.Slots))]
				}
				bookOnce(client, cfg, metrics, patient, slot)
			}
		}()
	}
	wg.Wait()

	printReport(metrics, cfg)
}

func bookOnce(client *http.Client, cfg SimConfig, metrics *Metrics, patientID, slotID uuid.UUID) {
	token, err := mintToken(cfg.JWTSecret, patientID)
	if err != nil {
		log.Printf("mint token: %v", err)
		return
	}

	url := fmt.Sprintf("%s/appointments/book/%s", cfg.APIBaseURL, slotID)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		log.Printf("build request: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, 0)
		return
	}
	_ = resp.Body.Close()
	metrics.Record(latency, resp.StatusCode)
}

// mintToken signs the same HS256 claims the auth boundary issues, so the
// simulator can act as any seeded patient.
func mintToken(secret string, patientID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub":  patientID.String(),
		"role": "patient",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 1000),
		HotSlotBias:  getFloat("SIM_HOT_SLOT_BIAS", 0.3),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	if cfg.Workers <= 0 {
		log.Fatal("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		log.Fatal("SIM_DURATION must be > 0")
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM slots
		WHERE status = 'available'
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 || len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("need seeded patients and available slots, run cmd/seed first")
	}

	dataPool.HotSlot = dataPool.Slots[rand.Intn(len(dataPool.Slots))]
	return dataPool, nil
}

func printReport(m *Metrics, cfg SimConfig) {
	avg, p50, p95, max := m.Stats()

	report, _ := json.MarshalIndent(map[string]any{
		"duration":     cfg.Duration.String(),
		"workers":      cfg.Workers,
		"total":        atomic.LoadInt64(&m.Total),
		"booked":       atomic.LoadInt64(&m.Booked),
		"conflict":     atomic.LoadInt64(&m.Conflict),
		"lock_busy":    atomic.LoadInt64(&m.LockBusy),
		"rate_limited": atomic.LoadInt64(&m.RateLimit),
		"error":        atomic.LoadInt64(&m.Error),
		"latency_avg":  avg.String(),
		"latency_p50":  p50.String(),
		"latency_p95":  p95.String(),
		"latency_max":  max.String(),
	}, "", "  ")
	fmt.Println(string(report))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
