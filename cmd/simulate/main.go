// Command simulate hammers the booking API with concurrent traffic skewed
// toward slot contention, then audits the database for the one property the
// platform must hold: no slot ever carries two live appointments.
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

	"github.com/healthlinkr/clinic-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	Hotspot     int // number of slots all workers fight over
	PostgresDSN string
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef

	mu           sync.RWMutex
	appointments []apptRef
}

type apptRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

func (dp *DataPool) AddAppointment(ref apptRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, ref)
}

func (dp *DataPool) RandomAppointment() (apptRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return apptRef{}, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OpMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OpMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OpMetrics) Report(name string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	fmt.Printf("%-12s total=%d success=%d conflict=%d error=%d",
		name, om.Total, om.Success, om.Conflict, om.Error)

	if len(om.latencies) > 0 {
		sorted := make([]time.Duration, len(om.latencies))
		copy(sorted, om.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fmt.Printf(" p50=%s p95=%s max=%s",
			sorted[len(sorted)*50/100],
			sorted[min(len(sorted)*95/100, len(sorted)-1)],
			sorted[len(sorted)-1])
	}
	fmt.Println()
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadDataPool(context.Background(), pool, cfg.Hotspot)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d patients, %d contended slots", len(data.Patients), len(data.Slots))

	var bookMetrics, cancelMetrics OpMetrics
	client := &http.Client{Timeout: 10 * time.Second}

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				if rand.Float64() < cfg.CancelRatio {
					doCancel(runCtx, client, cfg, data, &cancelMetrics)
				} else {
					doBook(runCtx, client, cfg, data, &bookMetrics)
				}
			}
		}()
	}
	wg.Wait()

	fmt.Println("\n=== results ===")
	bookMetrics.Report("book")
	cancelMetrics.Report("cancel")

	auditExclusivity(context.Background(), pool)
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:    30 * time.Second,
		Workers:     50,
		CancelRatio: 0.2,
		Hotspot:     25,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_HOTSPOT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hotspot = n
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, hotspot int) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A small pool of open slots maximizes contention per slot.
	slotRows, err := pool.Query(ctx, `
		SELECT id, doctor_id
		FROM schedule_slots
		WHERE is_booked = FALSE AND is_available = TRUE AND start_time > now()
		ORDER BY start_time
		LIMIT $1
	`, hotspot)
	if err != nil {
		return nil, err
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var ref slotRef
		if err := slotRows.Scan(&ref.ID, &ref.DoctorID); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, ref)
	}
	if err := slotRows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 || len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no patients or open slots, run seed first")
	}
	return dp, nil
}

func doBook(ctx context.Context, client *http.Client, cfg SimConfig, data *DataPool, m *OpMetrics) {
	patient := data.Patients[rand.Intn(len(data.Patients))]
	slot := data.Slots[rand.Intn(len(data.Slots))]

	body, _ := json.Marshal(map[string]string{
		"patient_id": patient.String(),
		"doctor_id":  slot.DoctorID.String(),
		"slot_id":    slot.ID.String(),
	})

	start := time.Now()
	status, respBody := post(ctx, client, cfg.APIBaseURL+"/bookings", patient, "PATIENT", body)
	m.Record(time.Since(start), status)

	if status == http.StatusCreated {
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &resp) == nil {
			data.AddAppointment(apptRef{ID: resp.ID, PatientID: patient})
		}
	}
}

func doCancel(ctx context.Context, client *http.Client, cfg SimConfig, data *DataPool, m *OpMetrics) {
	ref, ok := data.RandomAppointment()
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"status": "CANCELLED",
		"reason": "simulated cancellation",
	})

	start := time.Now()
	status, _ := post(ctx, client,
		fmt.Sprintf("%s/appointments/%s/status", cfg.APIBaseURL, ref.ID), ref.PatientID, "PATIENT", body)
	m.Record(time.Since(start), status)
}

func post(ctx context.Context, client *http.Client, url string, actor uuid.UUID, role string, body []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actor.String())
	req.Header.Set("X-User-Role", role)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

// auditExclusivity fails loudly if any slot ended up with more than one
// live appointment, or with is_booked out of sync with its appointments.
func auditExclusivity(ctx context.Context, pool *pgxpool.Pool) {
	var doubled int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT slot_id
			FROM appointments
			WHERE slot_id IS NOT NULL AND status <> 'CANCELLED'
			GROUP BY slot_id
			HAVING count(*) > 1
		) d
	`).Scan(&doubled)
	if err != nil {
		log.Fatalf("audit query: %v", err)
	}

	var stale int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM schedule_slots s
		WHERE s.is_booked = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status <> 'CANCELLED'
		  )
	`).Scan(&stale)
	if err != nil {
		log.Fatalf("audit query: %v", err)
	}

	fmt.Printf("audit: double-booked slots=%d, leaked reservations=%d\n", doubled, stale)
	if doubled > 0 || stale > 0 {
		os.Exit(1)
	}
}
