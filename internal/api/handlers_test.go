package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver

	"github.com/pgorski/dosetrack/internal/adherence"
	"github.com/pgorski/dosetrack/internal/config"
	"github.com/pgorski/dosetrack/internal/intake"
	"github.com/pgorski/dosetrack/internal/metrics"
	"github.com/pgorski/dosetrack/internal/model"
	"github.com/pgorski/dosetrack/internal/notify"
	"github.com/pgorski/dosetrack/internal/reminder"
	"github.com/pgorski/dosetrack/internal/store"
)

type stubTasks struct{}

func (stubTasks) ScheduleAt(tag, uniqueKey string, delay, every time.Duration, payload reminder.Payload) error {
	return nil
}

func (stubTasks) CancelByTag(tag string) {}

// testNow is a Thursday.
var testNow = time.Date(2024, 6, 20, 10, 0, 0, 0, time.Local)

func setupServer(t *testing.T) *Server {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)

	logger := zap.NewNop()
	st, err := store.NewWithDB(db, logger)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	cfg := config.Default()
	clock := func() time.Time { return testNow }

	sched := reminder.NewScheduler(stubTasks{}, &cfg.Reminders, m, logger).WithClock(clock)
	coord := intake.NewCoordinator(st, sched, &notify.LogNotifier{Logger: logger}, m, cfg.Supply.LowThreshold, logger).WithClock(clock)

	return New(cfg, st, coord, sched, registry, logger).WithClock(clock)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createMedication(t *testing.T, s *Server, req MedicationRequest) MedicationResponse {
	resp := doJSON(t, s, "POST", "/api/medications", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var med MedicationResponse
	decode(t, resp, &med)
	require.NotEmpty(t, med.ID)
	return med
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndListMedications(t *testing.T) {
	s := setupServer(t)

	med := createMedication(t, s, MedicationRequest{
		Name:       "Metformin",
		Frequency:  "daily:2",
		DoseAmount: "1",
		DoseUnit:   "tablet",
		Supply:     60,
	})
	assert.Equal(t, "daily:2", med.Frequency)
	assert.Equal(t, 60.0, med.AvailableSupply)
	assert.False(t, med.TakenToday)

	resp := doJSON(t, s, "GET", "/api/medications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []MedicationResponse
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, med.ID, list[0].ID)
}

func TestCreateRequiresName(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "POST", "/api/medications", MedicationRequest{Frequency: "daily:1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRejectsUnknownFrequency(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "POST", "/api/medications", MedicationRequest{Name: "X", Frequency: "hourly"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMissingMedication(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "GET", "/api/medications/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkTakenDefaultsToToday(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 10,
	})

	resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/taken", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated MedicationResponse
	decode(t, resp, &updated)
	assert.True(t, updated.TakenToday)
	assert.Equal(t, 9.0, updated.AvailableSupply)
	assert.Equal(t, testNow.Format(model.DateLayout), updated.LastTakenDate)
}

func TestMarkNotTakenFlipsBack(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 10,
	})

	doJSON(t, s, "POST", "/api/medications/"+med.ID+"/taken", nil)
	resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/not-taken", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated MedicationResponse
	decode(t, resp, &updated)
	assert.False(t, updated.TakenToday)
	assert.Equal(t, 9.0, updated.AvailableSupply)
}

func TestMarkTakenExplicitDate(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 10,
	})

	resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/taken", MarkRequest{Date: "2024-06-18"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated MedicationResponse
	decode(t, resp, &updated)
	assert.False(t, updated.TakenToday)
	assert.Equal(t, "2024-06-18", updated.LastTakenDate)
	assert.Equal(t, 10.0, updated.AvailableSupply)
}

func TestMarkTakenMissingMedication(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "POST", "/api/medications/nope/taken", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddSupply(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 3,
	})

	resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/supply", SupplyRequest{
		Packages:        2,
		UnitsPerPackage: 30,
		ExpiryDate:      "2026-01-31",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated MedicationResponse
	decode(t, resp, &updated)
	assert.Equal(t, 63.0, updated.AvailableSupply)
	assert.Equal(t, "2026-01-31", updated.ExpiryDate)
}

func TestAddSupplyRejectsNonPositive(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 3,
	})

	resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/supply", SupplyRequest{Packages: 0, UnitsPerPackage: 30})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 10,
	})

	for day := 16; day <= 20; day++ {
		date := fmt.Sprintf("2024-06-%02d", day)
		resp := doJSON(t, s, "POST", "/api/medications/"+med.ID+"/taken", MarkRequest{Date: date})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := doJSON(t, s, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats adherence.Stats
	decode(t, resp, &stats)
	assert.Equal(t, 5, stats.CurrentStreak)
	assert.Equal(t, 5, stats.LongestStreak)
}

func TestScheduleForDate(t *testing.T) {
	s := setupServer(t)
	createMedication(t, s, MedicationRequest{Name: "Daily", Frequency: "daily:1"})
	createMedication(t, s, MedicationRequest{Name: "Weekly", Frequency: "weekly:monday"})

	// Thursday: only the daily medication is due.
	resp := doJSON(t, s, "GET", "/api/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sched ScheduleResponse
	decode(t, resp, &sched)
	assert.Equal(t, "2024-06-20", sched.Date)
	require.Len(t, sched.Entries, 1)
	assert.Equal(t, "Daily", sched.Entries[0].Medication.Name)

	// The following Monday: both are due.
	resp = doJSON(t, s, "GET", "/api/schedule?date=2024-06-24", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decode(t, resp, &sched)
	assert.Len(t, sched.Entries, 2)
}

func TestScheduleRejectsBadDate(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "GET", "/api/schedule?date=junk", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateMedication(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{
		Name: "Metformin", Frequency: "daily:1", DoseAmount: "1", Supply: 10,
	})

	resp := doJSON(t, s, "PUT", "/api/medications/"+med.ID, MedicationRequest{
		Name:       "Metformin XR",
		Frequency:  "daily:2",
		DoseAmount: "1/2",
		DoseUnit:   "tablet",
		Supply:     20,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated MedicationResponse
	decode(t, resp, &updated)
	assert.Equal(t, "Metformin XR", updated.Name)
	assert.Equal(t, "daily:2", updated.Frequency)
	assert.Equal(t, 20.0, updated.AvailableSupply)
}

func TestDeleteMedication(t *testing.T) {
	s := setupServer(t)
	med := createMedication(t, s, MedicationRequest{Name: "Metformin", Frequency: "daily:1"})

	resp := doJSON(t, s, "DELETE", "/api/medications/"+med.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, s, "GET", "/api/medications/"+med.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t)

	resp := doJSON(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, string(body), "dosetrack_doses_taken_total")
}
