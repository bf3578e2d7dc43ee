// Package ingest receives tracking beacons over HTTP and stores them where
// the report engine reads them.
package ingest

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/papaganelli/visitlog/pkg/bot"
	"github.com/papaganelli/visitlog/pkg/parser"
	"github.com/papaganelli/visitlog/pkg/tracking"
)

const maxBody = 1 << 20

// Options configure a Server.
type Options struct {
	EventsDir       string
	FingerprintPath string
	Detector        *bot.Detector // nil uses the default detector config
	Location        *time.Location
	Logger          *slog.Logger
	Now             func() time.Time
}

// Server holds the ingestion routes.
type Server struct {
	Router       *chi.Mux
	events       EventSink
	fingerprints *FingerprintLog
	detector     *bot.Detector
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		Router:       chi.NewRouter(),
		events:       EventSink{Base: opts.EventsDir},
		fingerprints: &FingerprintLog{Path: opts.FingerprintPath},
		detector:     opts.Detector,
		loc:          opts.Location,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.detector == nil {
		s.detector = bot.NewDetector(bot.DefaultDetectorConfig())
	}
	if s.loc == nil {
		s.loc = parser.DefaultLocation()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/healthz", s.handleHealth)
	s.Router.Post("/api/tracking", s.handleEvent)
	s.Router.Post("/api/tracking/fingerprint", s.handleFingerprint)
	s.Router.Get("/api/tracking/fingerprint", s.handleFingerprintLookup)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var e tracking.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	now := s.now().In(s.loc)

	e.ID = uuid.NewString()
	e.Address = clientAddress(r)
	if e.UserAgent == "" {
		e.UserAgent = r.UserAgent()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if ms := e.TimeOnPageMs; ms != nil {
		secs := int64(math.Round(*ms / 1000))
		e.TimeOnPageSeconds = &secs
	}
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verdict := s.detector.Detect(e.Address, e.UserAgent, hints(e), now)
	log := s.logger.With(
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("ip", e.Address),
		slog.String("session", e.SessionID))
	if verdict.RateLimitExceeded {
		log.Warn("tracking rate limit exceeded", slog.Int("minute", verdict.RateLimit.RequestsInLastMinute))
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":     "rate limit exceeded",
			"rateLimit": verdict.RateLimit,
		})
		return
	}
	if verdict.IsBot {
		log.Info("tracking event from bot dropped", slog.String("reason", verdict.Reason))
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success":              true,
			"stored":               false,
			"requiresVerification": verdict.RequiresVerification,
		})
		return
	}

	if _, err := s.events.Write(e, now); err != nil {
		log.Error("failed to store tracking event", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}
	log.Debug("tracking event stored", slog.String("type", string(e.EventType)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"stored":               true,
		"eventId":              e.ID,
		"requiresVerification": verdict.RequiresVerification,
	})
}

func hints(e tracking.Event) *bot.Hints {
	h := &bot.Hints{TimeOnPageMs: e.TimeOnPageMs}
	if e.Engagement != nil {
		mm := e.Engagement.MouseMovements
		h.MouseMovements = &mm
	}
	return h
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	var fp tracking.Fingerprint
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&fp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fp.Address = clientAddress(r)
	if err := s.fingerprints.Append(fp.Entry(s.now())); err != nil {
		s.logger.Error("failed to store fingerprint", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to track fingerprint data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleFingerprintLookup(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitorId")
	addr := r.URL.Query().Get("ip")
	if visitorID == "" && addr == "" {
		writeError(w, http.StatusBadRequest, "visitorId or ip parameter is required")
		return
	}
	entries, err := s.fingerprints.Find(visitorID, addr)
	if err != nil {
		s.logger.Error("failed to read fingerprints", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch fingerprint data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "totalEntries": len(entries)})
}

// clientAddress resolves the visitor address behind the reverse proxy.
func clientAddress(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	return parser.ResolveAddress(remote, forwarded)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
