package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	EmergencyRatio float64
	ReadRatio      float64
	Doctors        []uuid.UUID
	Patients       []uuid.UUID
	Date           time.Time
	PostgresDSN    string
}

type DataPool struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]uuid.UUID // appointment -> patient
}

func (dp *DataPool) AddAppointment(id, patientID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments[id] = patientID
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (id, patientID uuid.UUID, ok bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, uuid.Nil, false
	}
	n := rng.Intn(len(dp.appointments))
	for k, v := range dp.appointments {
		if n == 0 {
			return k, v, true
		}
		n--
	}
	return uuid.Nil, uuid.Nil, false
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
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
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking   OperationMetrics
	Emergency OperationMetrics
	ReadByID  OperationMetrics
	Upcoming  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	log := config.NewLogger(baseCfg, "simulate")

	cfg, err := loadConfig(baseCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("doctors", len(cfg.Doctors)).
		Int("patients", len(cfg.Patients)).
		Str("date", cfg.Date.Format(appointment.DateLayout)).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{appointments: make(map[uuid.UUID]uuid.UUID)},
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	sim.Run()
	sim.PrintReport()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	overlaps, err := countOverlaps(ctx, pgPool, cfg.Doctors, cfg.Date)
	if err != nil {
		log.Fatal().Err(err).Msg("overlap check")
	}
	if overlaps > 0 {
		log.Error().Int("pairs", overlaps).Msg("double booking detected")
		os.Exit(1)
	}
	log.Info().Msg("no overlapping bookings")
}

func loadConfig(base config.Config) (SimConfig, error) {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.6),
		EmergencyRatio: getFloat("SIM_EMERGENCY_RATIO", 0.05),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.35),
		Date:           appointment.DateOf(time.Now().AddDate(0, 0, 1)),
		PostgresDSN:    base.PostgresDSN,
	}

	var err error
	if cfg.Doctors, err = parseIDs(os.Getenv("SIM_DOCTORS")); err != nil {
		return cfg, fmt.Errorf("SIM_DOCTORS: %w", err)
	}
	if cfg.Patients, err = parseIDs(os.Getenv("SIM_PATIENTS")); err != nil {
		return cfg, fmt.Errorf("SIM_PATIENTS: %w", err)
	}
	if v := os.Getenv("SIM_DATE"); v != "" {
		if cfg.Date, err = time.Parse(appointment.DateLayout, v); err != nil {
			return cfg, fmt.Errorf("SIM_DATE: %w", err)
		}
	}

	if len(cfg.Doctors) == 0 || len(cfg.Patients) == 0 {
		return cfg, fmt.Errorf("SIM_DOCTORS and SIM_PATIENTS must list identity-service ids")
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.EmergencyRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.EmergencyRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.EmergencyRatio:
			s.doEmergency(ctx, rng)
		case rng.Intn(2) == 0:
			s.doReadByID(ctx, rng)
		default:
			s.doUpcoming(ctx, rng)
		}
	}
}

// doBooking requests a window on a 15-minute grid with a 15 to 60 minute
// length, so concurrent requests overlap often.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.config.Doctors[rng.Intn(len(s.config.Doctors))]
	patientID := s.config.Patients[rng.Intn(len(s.config.Patients))]
	start := appointment.TimeOfDay(9*60 + 15*rng.Intn(32))
	end := start + appointment.TimeOfDay(15*(1+rng.Intn(4)))

	body := map[string]any{
		"doctor_id":        doctorID,
		"appointment_date": s.config.Date.Format(appointment.DateLayout),
		"start_time":       start.String(),
		"end_time":         end.String(),
		"reason":           "simulated visit",
	}

	began := time.Now()
	status, id := s.call(ctx, http.MethodPost, "/api/v1/appointments", body, appointment.RolePatient, patientID)
	if status == http.StatusCreated && id != uuid.Nil {
		s.pool.AddAppointment(id, patientID)
	}
	s.metrics.Booking.Record(time.Since(began), status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doEmergency(ctx context.Context, rng *rand.Rand) {
	patientID := s.config.Patients[rng.Intn(len(s.config.Patients))]
	body := map[string]any{
		"symptoms":    []string{"chest pain"},
		"description": "simulated emergency",
	}

	began := time.Now()
	status, _ := s.call(ctx, http.MethodPost, "/api/v1/appointments/emergency", body, appointment.RolePatient, patientID)
	s.metrics.Emergency.Record(time.Since(began), status == http.StatusCreated, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, patientID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	began := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/api/v1/appointments/"+id.String(), nil, appointment.RolePatient, patientID)
	s.metrics.ReadByID.Record(time.Since(began), status == http.StatusOK, false)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	doctorID := s.config.Doctors[rng.Intn(len(s.config.Doctors))]
	began := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/api/v1/appointments/upcoming", nil, appointment.RoleDoctor, doctorID)
	s.metrics.Upcoming.Record(time.Since(began), status == http.StatusOK, false)
}

// call returns the status code and, for created resources, the new id.
func (s *Simulator) call(ctx context.Context, method, path string, body any, role appointment.Role, userID uuid.UUID) (int, uuid.UUID) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, uuid.Nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderUserID, userID.String())
	req.Header.Set(auth.HeaderUserRole, string(role))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, uuid.Nil
	}
	defer resp.Body.Close()

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if resp.StatusCode == http.StatusCreated {
		_ = json.NewDecoder(resp.Body).Decode(&created)
	}
	return resp.StatusCode, created.ID
}

// countOverlaps counts pairs of blocking regular appointments that share a
// doctor and date and whose windows intersect.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID, date time.Time) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		 AND a.start_minute < b.end_minute
		 AND b.start_minute < a.end_minute
		WHERE a.doctor_id = ANY($1)
		  AND a.appointment_date = $2
		  AND a.appointment_type = 'REGULAR' AND b.appointment_type = 'REGULAR'
		  AND a.status IN ('PENDING', 'APPROVED')
		  AND b.status IN ('PENDING', 'APPROVED')
	`, doctors, date).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Emergency", &s.metrics.Emergency)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Upcoming", &s.metrics.Upcoming)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func parseIDs(raw string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
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
