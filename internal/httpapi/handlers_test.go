package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/horlami228/blaze/internal/cache"
	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/dispatch"
	"github.com/horlami228/blaze/internal/fare"
	"github.com/horlami228/blaze/internal/geo"
	"github.com/horlami228/blaze/internal/models"
	"github.com/horlami228/blaze/internal/notify"
	"github.com/horlami228/blaze/internal/path"
	"github.com/horlami228/blaze/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore, *geo.Index) {
	t.Helper()
	logger := slog.Default()
	store := storage.NewMemoryStore()
	index := geo.NewIndex()
	locCache := cache.NewMemory(1000*time.Second, 30*time.Second)
	recorder := path.NewRecorder(path.NewMemoryBuffer(), store, 1000, 20, time.Hour, logger)
	estimator := fare.NewEstimator(config.FareConfig{BaseFare: 500, PerKmRate: 150, RoadFactor: 1.25})
	hub := notify.NewHub(logger)
	engine := dispatch.NewEngine(store, index, locCache, recorder, estimator, hub, config.DispatchConfig{
		RadiusTiersKm:   []float64{3, 5, 10, 15},
		FreshnessWindow: 5 * time.Minute,
	}, logger)
	return NewServer(engine, hub, nil, logger), store, index
}

func doJSON(t *testing.T, srv *Server, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestMissingActorHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/ride/request", "", "{}")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequestRideNoDriversMapsTo404(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.PutRider(models.Rider{ID: "r1", UserID: "u-r1"})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/ride/request", "u-r1",
		`{"pickup":{"lat":6.51,"lon":3.49},"dropoff":{"lat":6.46,"lon":3.45}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "No drivers available nearby" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestRequestAndAcceptFlow(t *testing.T) {
	srv, store, index := newTestServer(t)
	store.PutRider(models.Rider{ID: "r1", UserID: "u-r1"})
	store.PutDriver(models.Driver{
		ID: "d1", UserID: "u-d1", VehicleID: "veh-1", IsOnline: true,
		OnboardingCompleted: true, LastKnownLat: 6.50, LastKnownLon: 3.48,
		LastLocationUpdate: time.Now(),
	})
	store.PutVehicle(models.Vehicle{ID: "veh-1", DriverID: "d1"})
	_ = index.Upsert(context.Background(), "d1", 3.48, 6.50)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/ride/request", "u-r1",
		`{"pickup":{"lat":6.51,"lon":3.49},"dropoff":{"lat":6.46,"lon":3.45}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.Ride `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != models.StatusPending || resp.Data.DriverID != "d1" {
		t.Fatalf("unexpected ride %+v", resp.Data)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/api/v1/ride/"+resp.Data.ID+"/accept", "u-d1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on accept, got %d: %s", rec.Code, rec.Body.String())
	}

	// duplicate accept is a client error with a precise message
	rec = doJSON(t, srv, http.MethodPatch, "/api/v1/ride/"+resp.Data.ID+"/accept", "u-d1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate accept, got %d", rec.Code)
	}
}

func TestUnknownRideMapsTo404(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.PutDriver(models.Driver{ID: "d1", UserID: "u-d1", OnboardingCompleted: true})

	rec := doJSON(t, srv, http.MethodPatch, "/api/v1/ride/nope/accept", "u-d1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
