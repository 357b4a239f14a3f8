package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/aurorawatch/internal/httpapi"
	"github.com/rewired-gh/aurorawatch/internal/models"
)

type mockStatus struct {
	readyErr  error
	decision  *models.Decision
	lastAlert *time.Time
}

func (m *mockStatus) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockStatus) LastDecision() (models.Decision, bool) {
	if m.decision == nil {
		return models.Decision{}, false
	}
	return *m.decision, true
}

func (m *mockStatus) LastAlertAt() (time.Time, bool) {
	if m.lastAlert == nil {
		return time.Time{}, false
	}
	return *m.lastAlert, true
}

func (m *mockStatus) Observer() models.ObserverLocation {
	return models.ObserverLocation{Name: "East Peoria", Latitude: 40.6664, Longitude: -89.589}
}

func get(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpapi.NewServer(":0", &mockStatus{}, nil)
	rec := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	rec := get(t, httpapi.NewServer(":0", &mockStatus{}, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, httpapi.NewServer(":0", &mockStatus{readyErr: errors.New("no monitoring cycle has completed yet")}, nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no monitoring cycle has completed yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, httpapi.NewServer(":0", &mockStatus{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusBeforeFirstCheck(t *testing.T) {
	rec := get(t, httpapi.NewServer(":0", &mockStatus{}, nil), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httpapi.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "East Peoria", body.Observer.Name)
	assert.Nil(t, body.LastDecision)
	assert.Nil(t, body.LastAlertAt)
}

func TestStatusWithDecision(t *testing.T) {
	at := time.Date(2024, 5, 10, 22, 0, 0, 0, time.UTC)
	status := &mockStatus{
		decision: &models.Decision{
			ID:      "abc",
			Kind:    models.DecisionAlert,
			Reading: models.IndexReading{Value: 8.33},
			Verdict: models.VisibilityVerdict{IsVisible: true, BoundaryLatitude: 40},
			At:      at,
		},
		lastAlert: &at,
	}
	rec := get(t, httpapi.NewServer(":0", status, nil), "/status")

	var body httpapi.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.LastDecision)
	assert.Equal(t, models.DecisionAlert, body.LastDecision.Kind)
	assert.Equal(t, 8.33, body.LastDecision.Reading.Value)
	require.NotNil(t, body.LastAlertAt)
	assert.True(t, at.Equal(*body.LastAlertAt))
}

func TestMapServesLatestArtifact(t *testing.T) {
	store := &httpapi.ArtifactStore{}
	srv := httpapi.NewServer(":0", &mockStatus{}, store)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/map").Code)

	path := filepath.Join(t.TempDir(), "aurora_forecast_x.html")
	require.NoError(t, os.WriteFile(path, []byte("<html>forecast</html>"), 0o644))
	store.Set(models.Artifact{Path: path, Checksum: "x"})

	rec := get(t, srv, "/map")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>forecast</html>", rec.Body.String())
}

func TestMapMissingFile(t *testing.T) {
	store := &httpapi.ArtifactStore{}
	store.Set(models.Artifact{Path: filepath.Join(t.TempDir(), "gone.html")})

	rec := get(t, httpapi.NewServer(":0", &mockStatus{}, store), "/map")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
