package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/adapters/registry"
	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/internal/auth"
)

type staticLister struct {
	sessions []entities.Session
}

func (l *staticLister) ActiveSessions() []entities.Session {
	return l.sessions
}

func newTestServer(t *testing.T, lister SessionLister) (*echo.Echo, *registry.MemoryRegistry) {
	t.Helper()
	devices := registry.NewMemoryRegistry()
	if err := devices.Create(context.Background(), &entities.Device{
		SerialNumber: "VX-001",
		SecretKey:    "hunter2",
		Model:        "speaker-v1",
		SampleRate:   16000,
	}); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	server := NewServer(lister, nil, devices, auth.New("test-secret", time.Hour), zap.NewNop())
	server.InitRoutes(e)
	return e, devices
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t, &staticLister{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeviceAuthIssuesToken(t *testing.T) {
	e, _ := newTestServer(t, &staticLister{})

	body := `{"serial_number":"VX-001","secret_key":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/auth", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp DeviceAuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.DeviceID == "" {
		t.Fatalf("incomplete response %+v", resp)
	}

	claims, err := auth.New("test-secret", time.Hour).ValidateToken(resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.DeviceID != resp.DeviceID {
		t.Fatalf("token device = %q, response device = %q", claims.DeviceID, resp.DeviceID)
	}
}

func TestDeviceAuthRejectsBadCredentials(t *testing.T) {
	e, _ := newTestServer(t, &staticLister{})

	body := `{"serial_number":"VX-001","secret_key":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/auth", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestActiveSessionsSnapshot(t *testing.T) {
	lister := &staticLister{sessions: []entities.Session{
		*entities.NewSession("dev-1", ""),
		*entities.NewSession("dev-2", ""),
	}}
	e, _ := newTestServer(t, lister)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/active", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count    int                `json:"count"`
		Sessions []entities.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Sessions) != 2 {
		t.Fatalf("response = %+v", resp)
	}
}
