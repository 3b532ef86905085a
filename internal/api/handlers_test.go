package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicore/slot-booking/internal/booking"
	redisclient "github.com/clinicore/slot-booking/internal/redis"
)

const testSecret = "test-secret"

// stubRepo holds slots and schedules in maps and applies booking writes
// under one mutex, which is all the engine needs from a store.
type stubRepo struct {
	mu        sync.Mutex
	slots     map[uuid.UUID]booking.Slot
	schedules map[uuid.UUID]booking.Schedule
	appts     int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		slots:     make(map[uuid.UUID]booking.Slot),
		schedules: make(map[uuid.UUID]booking.Schedule),
	}
}

func (r *stubRepo) GetSlotByID(ctx context.Context, id uuid.UUID) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	return &s, nil
}

func (r *stubRepo) GetScheduleByID(ctx context.Context, id uuid.UUID) (*booking.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, booking.ErrScheduleNotFound
	}
	return &s, nil
}

func (r *stubRepo) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []booking.Slot
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.Status != booking.SlotCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubRepo) DatesWithSlots(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	covered := make(map[time.Time]bool)
	for _, s := range r.slots {
		if s.ScheduleID == scheduleID && !s.Date.Before(from) && !s.Date.After(to) {
			covered[s.Date] = true
		}
	}
	return covered, nil
}

func (r *stubRepo) InsertSlots(ctx context.Context, slots []booking.Slot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range slots {
		r.slots[s.ID] = s
	}
	return len(slots), nil
}

func (r *stubRepo) DeleteAvailableSlots(ctx context.Context, scheduleID uuid.UUID, dates []time.Time) error {
	return nil
}

func (r *stubRepo) UpdateSlot(ctx context.Context, next booking.Slot, prevStatus booking.SlotStatus) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.slots[next.ID]
	if !ok || cur.Status != prevStatus {
		return nil, fmt.Errorf("%w: slot status changed concurrently", booking.ErrConflict)
	}
	r.slots[next.ID] = next
	return &next, nil
}

func (r *stubRepo) BookSlot(ctx context.Context, next booking.Slot, appt booking.Appointment) (*booking.Appointment, *booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.slots[next.ID]
	if !ok {
		return nil, nil, booking.ErrSlotNotFound
	}
	if cur.Status != booking.SlotAvailable {
		return nil, nil, fmt.Errorf("%w: slot is no longer available", booking.ErrConflict)
	}
	r.slots[next.ID] = next
	r.appts++
	appt.CreatedAt = time.Now().UTC()
	return &appt, &next, nil
}

// passLocker runs the critical section inline; busyLocker always reports
// contention.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockBusy
}

type nopCache struct{}

func (nopCache) Get(ctx context.Context, doctorID uuid.UUID) ([]booking.Slot, bool) { return nil, false }
func (nopCache) Set(ctx context.Context, doctorID uuid.UUID, slots []booking.Slot)  {}
func (nopCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error           { return nil }

func testRouter(svc *booking.Service) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(testSecret))
		r.Post("/slots/generate", generateSlotsHandler(svc))
		r.Get("/slots", listSlotsHandler(svc))
		r.Put("/slots/{id}", updateSlotHandler(svc))
		r.Post("/slots/bulk-update", bulkUpdateHandler(svc))
		r.Post("/appointments/book/{slotId}", bookSlotHandler(svc))
	})
	return r
}

func newTestService(repo *stubRepo, locker redisclient.Locker) *booking.Service {
	return booking.NewService(repo, locker, nopCache{}, nil, "slots.changed", 90)
}

func mintToken(t *testing.T, actorID uuid.UUID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actorID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seededSlot(repo *stubRepo, doctorID uuid.UUID, status booking.SlotStatus) booking.Slot {
	s := booking.Slot{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMin: 10 * 60,
		EndMin:   10*60 + 30,
		Status:   status,
	}
	repo.slots[s.ID] = s
	return s
}

func TestAuthRequired(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	rec := doRequest(t, h, http.MethodGet, "/slots?doctor_id="+uuid.NewString(), "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/slots?doctor_id="+uuid.NewString(), "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsUnknownRole(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	token := mintToken(t, uuid.New(), "superuser")
	rec := doRequest(t, h, http.MethodGet, "/slots?doctor_id="+uuid.NewString(), token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown role: status = %d, want 401", rec.Code)
	}
}

func TestBookEndpoint(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	slot := seededSlot(repo, doctorID, booking.SlotAvailable)
	patientID := uuid.New()
	token := mintToken(t, patientID, "patient")

	rec := doRequest(t, h, http.MethodPost, "/appointments/book/"+slot.ID.String(), token, BookRequest{Notes: "checkup"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body)
	}

	var resp AppointmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SlotID != slot.ID || resp.PatientID != patientID {
		t.Errorf("appointment = %+v, want slot %s patient %s", resp, slot.ID, patientID)
	}
	if resp.Status != "confirmed" {
		t.Errorf("appointment status = %q, want confirmed", resp.Status)
	}
}

func TestBookEndpointConflict(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	slot := seededSlot(repo, uuid.New(), booking.SlotBooked)
	token := mintToken(t, uuid.New(), "patient")

	rec := doRequest(t, h, http.MethodPost, "/appointments/book/"+slot.ID.String(), token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error != "conflict" {
		t.Errorf("error code = %q, want conflict", resp.Error)
	}
}

func TestBookEndpointLockBusy(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, busyLocker{}))

	slot := seededSlot(repo, uuid.New(), booking.SlotAvailable)
	token := mintToken(t, uuid.New(), "patient")

	rec := doRequest(t, h, http.MethodPost, "/appointments/book/"+slot.ID.String(), token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("missing Retry-After header on lock contention")
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error != "slot_lock_busy" {
		t.Errorf("error code = %q, want slot_lock_busy", resp.Error)
	}
}

func TestBookEndpointNotFound(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))
	token := mintToken(t, uuid.New(), "patient")

	rec := doRequest(t, h, http.MethodPost, "/appointments/book/"+uuid.NewString(), token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown slot: status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/appointments/book/not-a-uuid", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
}

func TestUpdateSlotEndpoint(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	slot := seededSlot(repo, doctorID, booking.SlotAvailable)
	ownerToken := mintToken(t, doctorID, "doctor")

	rec := doRequest(t, h, http.MethodPut, "/slots/"+slot.ID.String(), ownerToken,
		UpdateSlotRequest{Action: "block", Reason: "vacation"})
	if rec.Code != http.StatusOK {
		t.Fatalf("block: status = %d, body %s", rec.Code, rec.Body)
	}

	var resp SlotResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "blocked" {
		t.Errorf("slot status = %q, want blocked", resp.Status)
	}
	if resp.BlockReason == nil || *resp.BlockReason != "vacation" {
		t.Errorf("block reason missing from response")
	}

	// Another doctor is refused regardless of what they ask for.
	strangerToken := mintToken(t, uuid.New(), "doctor")
	rec = doRequest(t, h, http.MethodPut, "/slots/"+slot.ID.String(), strangerToken,
		UpdateSlotRequest{Action: "unblock"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPut, "/slots/"+slot.ID.String(), ownerToken,
		UpdateSlotRequest{Action: "vanish"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: status = %d, want 400", rec.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	sched := booking.Schedule{
		ID:              uuid.New(),
		DoctorID:        doctorID,
		Weekday:         time.Monday,
		WorkStartMin:    9 * 60,
		WorkEndMin:      12 * 60,
		SlotDurationMin: 30,
		Active:          true,
	}
	repo.schedules[sched.ID] = sched
	token := mintToken(t, doctorID, "doctor")

	rec := doRequest(t, h, http.MethodPost, "/slots/generate", token, GenerateSlotsRequest{
		ScheduleID: sched.ID.String(),
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-07",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp GenerateSlotsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Created != 6 {
		t.Errorf("created = %d, want 6", resp.Created)
	}

	rec = doRequest(t, h, http.MethodPost, "/slots/generate", token, GenerateSlotsRequest{
		ScheduleID: sched.ID.String(),
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-06",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d, want 400", rec.Code)
	}
}

func TestBulkUpdateEndpoint(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	a := seededSlot(repo, doctorID, booking.SlotAvailable)
	b := booking.Slot{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     a.Date,
		StartMin: 11 * 60,
		EndMin:   11*60 + 30,
		Status:   booking.SlotBooked,
	}
	repo.slots[b.ID] = b

	token := mintToken(t, doctorID, "doctor")
	rec := doRequest(t, h, http.MethodPost, "/slots/bulk-update", token, BulkUpdateRequest{
		Items: []BulkUpdateItem{
			{SlotID: a.ID.String(), Action: "block", Reason: "cleanup"},
			{SlotID: b.ID.String(), Action: "block", Reason: "cleanup"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp BulkUpdateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SuccessCount != 1 || resp.ErrorCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", resp.SuccessCount, resp.ErrorCount)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code != "conflict" {
		t.Errorf("errors = %+v, want one conflict for the booked slot", resp.Errors)
	}
}

func TestBulkUpdateEndpointMalformedID(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	slot := seededSlot(repo, doctorID, booking.SlotAvailable)
	token := mintToken(t, doctorID, "doctor")

	rec := doRequest(t, h, http.MethodPost, "/slots/bulk-update", token, BulkUpdateRequest{
		Items: []BulkUpdateItem{
			{SlotID: slot.ID.String(), Action: "block", Reason: "maintenance"},
			{SlotID: "not-a-uuid", Action: "block", Reason: "maintenance"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	var resp BulkUpdateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SuccessCount != 1 || resp.ErrorCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", resp.SuccessCount, resp.ErrorCount)
	}
	if len(resp.Results)+len(resp.Errors) != 2 {
		t.Errorf("results %d + errors %d != 2", len(resp.Results), len(resp.Errors))
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code != "invalid_request" {
		t.Errorf("errors = %+v, want one invalid_request for the malformed id", resp.Errors)
	}

	repo.mu.Lock()
	status := repo.slots[slot.ID].Status
	repo.mu.Unlock()
	if status != booking.SlotBlocked {
		t.Errorf("valid item not applied, slot status = %q", status)
	}
}

func TestListSlotsEndpoint(t *testing.T) {
	repo := newStubRepo()
	h := testRouter(newTestService(repo, passLocker{}))

	doctorID := uuid.New()
	seededSlot(repo, doctorID, booking.SlotAvailable)
	token := mintToken(t, uuid.New(), "patient")

	rec := doRequest(t, h, http.MethodGet, "/slots?doctor_id="+doctorID.String(), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp SlotListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(resp.Items))
	}
	if resp.Items[0].Date != "2026-09-07" || resp.Items[0].StartTime != "10:00" {
		t.Errorf("slot rendering = %+v", resp.Items[0])
	}

	rec = doRequest(t, h, http.MethodGet, "/slots?doctor_id=nope", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad doctor_id: status = %d, want 400", rec.Code)
	}
}
