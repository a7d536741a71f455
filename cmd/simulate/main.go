package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/app"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/calendar"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	SearchRatio  float64
	CancelRatio  float64
	ReadRatio    float64
	UserLimit    int
	SearchDays   int
	PostgresDSN  string
	JWTSecret    string
	Timezone     string
}

type bookedAppt struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// DataPool holds the users the simulator acts as and the appointments it
// created along the way.
type DataPool struct {
	Users []uuid.UUID
	Staff uuid.UUID

	mu     sync.Mutex
	booked []bookedAppt
}

func (dp *DataPool) AddAppointment(b bookedAppt) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (bookedAppt, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return bookedAppt{}, false
	}
	return dp.booked[rng.Intn(len(dp.booked))], true
}

// TakeAppointment removes a random appointment so it is cancelled only once.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (bookedAppt, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return bookedAppt{}, false
	}
	i := rng.Intn(len(dp.booked))
	b := dp.booked[i]
	dp.booked[i] = dp.booked[len(dp.booked)-1]
	dp.booked = dp.booked[:len(dp.booked)-1]
	return b, true
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

func classify(status int) outcome {
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeConflict
	case status >= 400 && status < 500:
		return outcomeRejected
	default:
		return outcomeError
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		i := len(latencies) * p / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return latencies[i]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), pct(99)
}

type Metrics struct {
	Book   OperationMetrics
	Search OperationMetrics
	Cancel OperationMetrics
	Read   OperationMetrics
}

type Simulator struct {
	config   SimConfig
	pool     *DataPool
	client   *http.Client
	verifier *auth.Verifier
	cal      calendar.Calendar
	logger   zerolog.Logger
	metrics  Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid config")
	}

	logger := app.NewLogger("dev")
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("book", cfg.BookingRatio).
		Float64("search", cfg.SearchRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	cal, err := calendar.New(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("users", len(dataPool.Users)).Msg("data pool loaded")

	sim := &Simulator{
		config:   cfg,
		pool:     dataPool,
		client:   &http.Client{Timeout: 10 * time.Second},
		verifier: auth.NewVerifier(cfg.JWTSecret),
		cal:      cal,
		logger:   logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		SearchRatio:  getFloat("SIM_SEARCH_RATIO", 0.3),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		UserLimit:    getInt("SIM_USER_LIMIT", 4000),
		SearchDays:   getInt("SIM_SEARCH_DAYS", 7),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
		Timezone:     baseCfg.BusinessTimezone,
	}

	total := cfg.BookingRatio + cfg.SearchRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.SearchRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.JWTSecret == "" {
		return SimConfig{}, fmt.Errorf("JWT_SECRET is required to sign simulated tokens")
	}
	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SearchDays <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_SEARCH_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT u.id
		FROM users u
		JOIN business_users bu ON bu.user_id = u.id AND bu.is_active
		JOIN businesses b ON b.id = bu.business_id AND b.is_active
		LIMIT $1
	`, cfg.UserLimit)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{Staff: uuid.New()}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Users = append(dataPool.Users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Users) == 0 {
		return nil, fmt.Errorf("no users loaded, run the seed command first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("simulation running")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBook(ctx, rng)
		case r < s.config.BookingRatio+s.config.SearchRatio:
			s.doSearch(ctx, rng)
		case r < s.config.BookingRatio+s.config.SearchRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) token(id uuid.UUID, role string) string {
	tok, err := s.verifier.Issue(id, role, time.Hour)
	if err != nil {
		s.logger.Fatal().Err(err).Msg("sign token")
	}
	return tok
}

// call sends one request and decodes a 2xx body into out when out is non-nil.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) search(ctx context.Context, token string) ([]availability.DaySlots, int, time.Duration, error) {
	today := s.cal.Today(time.Now())
	req := api.SearchSlotsRequest{
		StartDate: calendar.FormatDate(today),
		EndDate:   calendar.FormatDate(today.AddDate(0, 0, s.config.SearchDays-1)),
	}
	var days []availability.DaySlots
	status, latency, err := s.call(ctx, http.MethodPost, "/slots/search", token, req, &days)
	return days, status, latency, err
}

func (s *Simulator) doSearch(ctx context.Context, rng *rand.Rand) {
	userID := s.pool.Users[rng.Intn(len(s.pool.Users))]
	_, status, latency, err := s.search(ctx, s.token(userID, auth.RoleUser))
	s.record(&s.metrics.Search, latency, status, err)
}

// doBook searches as a random user and books one of the returned markers.
func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	userID := s.pool.Users[rng.Intn(len(s.pool.Users))]
	token := s.token(userID, auth.RoleUser)

	days, status, _, err := s.search(ctx, token)
	if err != nil || classify(status) != outcomeSuccess || len(days) == 0 {
		return
	}
	day := days[rng.Intn(len(days))]
	if len(day.Slots) == 0 {
		return
	}
	marker := day.Slots[rng.Intn(len(day.Slots))]

	var appt api.AppointmentResponse
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", token,
		api.BookAppointmentRequest{Date: day.Date, Time: marker}, &appt)
	s.record(&s.metrics.Book, latency, status, err)

	if err == nil && classify(status) == outcomeSuccess && appt.ID != uuid.Nil {
		s.pool.AddAppointment(bookedAppt{ID: appt.ID, UserID: userID})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPatch,
		fmt.Sprintf("/appointments/%s/cancel", b.ID), s.token(b.UserID, auth.RoleUser), nil, nil)
	s.record(&s.metrics.Cancel, latency, status, err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments/%s", b.ID), s.token(s.pool.Staff, auth.RoleAdmin), nil, nil)
	s.record(&s.metrics.Read, latency, status, err)
}

func (s *Simulator) record(om *OperationMetrics, latency time.Duration, status int, err error) {
	if err != nil {
		s.logger.Debug().Err(err).Msg("request failed")
		om.Record(latency, outcomeError)
		return
	}
	om.Record(latency, classify(status))
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Search", &s.metrics.Search)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	avg, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	success := atomic.LoadInt64(&om.Success)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if n := atomic.LoadInt64(&om.Conflict); n > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Rejected); n > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", n, pct(n))
	}
	if n := atomic.LoadInt64(&om.Error); n > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", n, pct(n))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
