package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horlami228/blaze/internal/dispatch"
	"github.com/horlami228/blaze/internal/ingest"
	"github.com/horlami228/blaze/internal/models"
	"github.com/horlami228/blaze/internal/notify"
)

// Server exposes the dispatch engine over HTTP. Authentication is owned by
// an upstream gateway; the authenticated actor arrives as the X-User-ID
// header.
type Server struct {
	engine   *dispatch.Engine
	hub      *notify.Hub
	producer *ingest.Producer // nil when Kafka is not configured
	logger   *slog.Logger
	mux      *mux.Router
}

func NewServer(engine *dispatch.Engine, hub *notify.Hub, producer *ingest.Producer, logger *slog.Logger) *Server {
	s := &Server{engine: engine, hub: hub, producer: producer, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/ride/update-driver-location", s.handleUpdateLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/ride/toggle-availability", s.handleToggleAvailability).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/ride/request", s.handleRequestRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/ride/{ride_id}/accept", s.transitionHandler(s.engine.AcceptRide, "Ride accepted")).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/ride/{ride_id}/start", s.transitionHandler(s.engine.StartRide, "Ride started")).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/ride/{ride_id}/complete", s.transitionHandler(s.engine.CompleteRide, "Ride completed")).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/ride/{ride_id}/cancel", s.transitionHandler(s.engine.CancelRide, "Ride cancelled")).Methods("PATCH")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.actor(w, r)
	if !ok {
		return
	}
	var ping models.LocationPing
	if err := json.NewDecoder(r.Body).Decode(&ping); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}
	// With Kafka configured the ping is queued and the consumer applies
	// it; otherwise it is applied inline.
	if s.producer != nil {
		if err := s.producer.PublishPing(userID, ping); err != nil {
			s.logger.Error("ping publish failed", "user_id", userID, "error", err)
			writeJSON(w, http.StatusInternalServerError, response{Message: "internal error"})
			return
		}
		writeJSON(w, http.StatusAccepted, response{Message: "Driver location update queued"})
		return
	}
	if err := s.engine.RecordLocation(r.Context(), userID, ping); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Driver location updated successfully"})
}

func (s *Server) handleToggleAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.actor(w, r)
	if !ok {
		return
	}
	online, err := s.engine.ToggleAvailability(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg := "Driver is now offline"
	if online {
		msg = "Driver is now online"
	}
	writeJSON(w, http.StatusOK, response{Message: msg, Data: map[string]bool{"is_online": online}})
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}
	ride, err := s.engine.RequestRide(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Message: "Ride created and assigned", Data: ride})
}

func (s *Server) transitionHandler(op func(ctx context.Context, userID, rideID string) (*models.Ride, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.actor(w, r)
		if !ok {
			return
		}
		rideID := mux.Vars(r)["ride_id"]
		ride, err := op(r.Context(), userID, rideID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response{Message: msg, Data: ride})
	}
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.hub.Add(userID, conn)
}

type response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{Message: "missing X-User-ID"})
		return "", false
	}
	return userID, true
}

// writeError maps the engine's error taxonomy onto HTTP statuses. Internal
// failure detail never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var nfe *dispatch.NotFoundError
	var ise *dispatch.InvalidStateError
	var nce *dispatch.NoCapacityError
	var dep *dispatch.DependencyError
	switch {
	case errors.As(err, &nfe):
		writeJSON(w, http.StatusNotFound, response{Message: nfe.Error()})
	case errors.As(err, &ise):
		writeJSON(w, http.StatusBadRequest, response{Message: ise.Error()})
	case errors.As(err, &nce):
		writeJSON(w, http.StatusNotFound, response{Message: "No drivers available nearby"})
	case errors.As(err, &dep):
		s.logger.Error("dependency failure", "op", dep.Op, "error", dep.Err)
		writeJSON(w, http.StatusInternalServerError, response{Message: "internal error"})
	default:
		s.logger.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
