package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/appointments/transport"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/httpkit"
	"vetclinic_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

type jwtConfig struct{}

func (jwtConfig) GetJWTAccessSecret() string { return testSecret }

type stubService struct {
	err       error
	appt      domain.Appointment
	lastActor string
	lastNotes string
	lastID    uuid.UUID
	from, to  time.Time
}

func (s *stubService) result(actor string) (domain.Appointment, error) {
	s.lastActor = actor
	return s.appt, s.err
}

func (s *stubService) Create(_ context.Context, actor string, _ transport.CreateAppointmentRequest) (domain.Appointment, error) {
	return s.result(actor)
}
func (s *stubService) Confirm(_ context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
	s.lastID = id
	return s.result(actor)
}
func (s *stubService) Start(_ context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
	s.lastID = id
	return s.result(actor)
}
func (s *stubService) Complete(_ context.Context, id uuid.UUID, actor, notes string) (domain.Appointment, error) {
	s.lastID, s.lastNotes = id, notes
	return s.result(actor)
}
func (s *stubService) Cancel(_ context.Context, id uuid.UUID, actor, reason string) (domain.Appointment, error) {
	s.lastID, s.lastNotes = id, reason
	return s.result(actor)
}
func (s *stubService) GetByID(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.lastID = id
	return s.appt, s.err
}
func (s *stubService) ListByClient(context.Context, uuid.UUID) ([]domain.Appointment, error) {
	return []domain.Appointment{s.appt}, s.err
}
func (s *stubService) ListForVeterinarian(_ context.Context, _ uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	s.from, s.to = from, to
	return []domain.Appointment{s.appt}, s.err
}
func (s *stubService) Delete(_ context.Context, id uuid.UUID) error {
	s.lastID = id
	return s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(svc AppointmentService) *gin.Engine {
	engine := gin.New()
	v1 := engine.Group("/api/v1")
	protected := v1.Group("", httpkit.AuthRequired(jwtConfig{}))
	New(svc, validator.New()).RegisterRoutes(v1, protected)
	return engine
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"clientId":        uuid.NewString(),
		"patientId":       uuid.NewString(),
		"veterinarianId":  uuid.NewString(),
		"appointmentDate": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"duration":        30,
	}
}

func TestCreateRequiresToken(t *testing.T) {
	rec := do(t, newEngine(&stubService{}), http.MethodPost, "/api/v1/appointments", validBody(), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateReturnsCreatedWithActor(t *testing.T) {
	user := uuid.New()
	svc := &stubService{appt: domain.Appointment{ID: uuid.New(), Status: domain.StatusScheduled, Duration: 30, Version: 1}}

	rec := do(t, newEngine(svc), http.MethodPost, "/api/v1/appointments", validBody(), bearer(t, user))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor != user.String() {
		t.Fatalf("expected actor %s, got %s", user, svc.lastActor)
	}

	var resp transport.AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "scheduled" || resp.Version != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCreateValidationFailure(t *testing.T) {
	body := validBody()
	body["duration"] = 0

	rec := do(t, newEngine(&stubService{}), http.MethodPost, "/api/v1/appointments", body, bearer(t, uuid.New()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp httpkit.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	details, _ := resp.Details.(map[string]any)
	if details["duration"] == nil {
		t.Fatalf("expected duration field error, got %+v", resp)
	}
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name   string
		err    error
		method string
		path   string
		want   int
	}{
		{"conflict", apperr.SchedulingConflict("slot taken"), http.MethodPost, "/api/v1/appointments", http.StatusConflict},
		{"invalid state", apperr.InvalidState("appointment is cancelled"), http.MethodPatch, "/api/v1/appointments/" + id.String() + "/confirm", http.StatusConflict},
		{"not found", apperr.NotFound("appointment not found"), http.MethodGet, "/api/v1/appointments/" + id.String(), http.StatusNotFound},
		{"persistence", apperr.Persistence("failed to store appointment", context.DeadlineExceeded), http.MethodPatch, "/api/v1/appointments/" + id.String() + "/start", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		var body any
		if tc.method == http.MethodPost {
			body = validBody()
		}
		rec := do(t, newEngine(&stubService{err: tc.err}), tc.method, tc.path, body, bearer(t, uuid.New()))
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
		if tc.want == http.StatusInternalServerError && bytes.Contains(rec.Body.Bytes(), []byte("deadline")) {
			t.Fatalf("%s: driver error leaked: %s", tc.name, rec.Body.String())
		}
	}
}

func TestCompleteAcceptsOptionalNotes(t *testing.T) {
	svc := &stubService{appt: domain.Appointment{ID: uuid.New(), Status: domain.StatusCompleted}}
	engine := newEngine(svc)
	id := uuid.New()

	rec := do(t, engine, http.MethodPatch, "/api/v1/appointments/"+id.String()+"/complete", map[string]string{"notes": "stitches removed"}, bearer(t, uuid.New()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastID != id || svc.lastNotes != "stitches removed" {
		t.Fatalf("unexpected call id=%s notes=%q", svc.lastID, svc.lastNotes)
	}

	rec = do(t, engine, http.MethodPatch, "/api/v1/appointments/"+id.String()+"/cancel", nil, bearer(t, uuid.New()))
	if rec.Code != http.StatusOK {
		t.Fatalf("empty cancel body: expected 200, got %d", rec.Code)
	}
}

func TestInvalidIDIsBadRequest(t *testing.T) {
	rec := do(t, newEngine(&stubService{}), http.MethodGet, "/api/v1/appointments/not-a-uuid", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCalendarQueryIsParsed(t *testing.T) {
	svc := &stubService{}
	path := "/api/v1/veterinarians/" + uuid.NewString() + "/appointments?from=2030-05-10T08:00:00Z&to=2030-05-10T18:00:00Z"

	rec := do(t, newEngine(svc), http.MethodGet, path, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if want := time.Date(2030, 5, 10, 18, 0, 0, 0, time.UTC); !svc.to.Equal(want) {
		t.Fatalf("expected to=%s, got %s", want, svc.to)
	}

	rec = do(t, newEngine(svc), http.MethodGet, "/api/v1/veterinarians/"+uuid.NewString()+"/appointments", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing window: expected 400, got %d", rec.Code)
	}
}

func TestDeleteReturnsNoContent(t *testing.T) {
	rec := do(t, newEngine(&stubService{}), http.MethodDelete, "/api/v1/appointments/"+uuid.NewString(), nil, bearer(t, uuid.New()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
