package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/client"
	"github.com/Sternrassler/gourmet-search/pkg/logging"
	"github.com/Sternrassler/gourmet-search/pkg/metrics"
	"github.com/Sternrassler/gourmet-search/pkg/model"
	"github.com/Sternrassler/gourmet-search/pkg/pagination"
	"github.com/Sternrassler/gourmet-search/pkg/ratelimit"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const maxRequestBody = 1 << 20

// server wires the search client and sessions to HTTP.
type server struct {
	fetcher  pagination.PageFetcher
	sessions *sessionRegistry
	redis    *redis.Client      // nil without quota
	quota    *ratelimit.Tracker // nil without quota
	logger   zerolog.Logger
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

// Router builds the HTTP handler with logging and CORS applied.
func (s *server) Router(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/ready", s.readyHandler).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/shops", s.shopsHandler).Methods("GET")
	api.HandleFunc("/sessions", s.createSessionHandler).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.getSessionHandler).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.deleteSessionHandler).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/more", s.loadMoreHandler).Methods("POST")
	api.HandleFunc("/quota", s.quotaHandler).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", logging.HeaderRequestID},
		ExposedHeaders: []string{logging.HeaderRequestID},
	})

	return logging.HTTPMiddleware(s.logger)(c.Handler(router))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.redis.Ping(ctx).Err(); err != nil {
			logging.FromContext(r.Context()).Warn().Err(err).Msg("Redis not reachable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// shopsHandler handles GET /v1/shops and returns one page.
func (s *server) shopsHandler(w http.ResponseWriter, r *http.Request) {
	criteria, start, count, err := parseShopsQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	page, err := s.fetcher.FetchPage(r.Context(), criteria, start, count)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, r, http.StatusOK, page)
}

// createSessionHandler handles POST /v1/sessions: it opens a session and
// loads the first page. A failed first page closes the session again.
func (s *server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var criteria model.SearchCriteria
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&criteria); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid search criteria: %w", err))
		return
	}

	session, err := s.sessions.Create()
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	if err := session.Search(r.Context(), criteria); err != nil {
		s.sessions.Delete(session.ID())
		writeError(w, r, statusFor(err), err)
		return
	}

	w.Header().Set("Location", "/v1/sessions/"+session.ID())
	writeJSON(w, r, http.StatusCreated, session.Snapshot())
}

func (s *server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, session.Snapshot())
}

// loadMoreHandler handles POST /v1/sessions/{id}/more. A request that
// cannot load anything returns the unchanged snapshot.
func (s *server) loadMoreHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	if err := session.LoadMore(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, session.Snapshot())
}

func (s *server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// quotaHandler handles GET /v1/quota.
func (s *server) quotaHandler(w http.ResponseWriter, r *http.Request) {
	if s.quota == nil {
		writeError(w, r, http.StatusNotFound, errors.New("quota tracking disabled"))
		return
	}

	state, err := s.quota.GetState(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

// parseShopsQuery reads criteria and the page window from the query string.
// start defaults to 1 and count to the session page size.
func parseShopsQuery(r *http.Request) (model.SearchCriteria, int, int, error) {
	q := r.URL.Query()
	var criteria model.SearchCriteria

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return criteria, 0, 0, fmt.Errorf("invalid lat %q", q.Get("lat"))
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return criteria, 0, 0, fmt.Errorf("invalid lng %q", q.Get("lng"))
	}
	radius, err := model.ParseRadius(q.Get("range"))
	if err != nil {
		return criteria, 0, 0, err
	}

	criteria = model.SearchCriteria{
		Latitude:  lat,
		Longitude: lng,
		Radius:    radius,
		Keyword:   q.Get("keyword"),
		Genre:     q.Get("genre"),
	}

	start, err := intParam(q.Get("start"), 1)
	if err != nil {
		return criteria, 0, 0, fmt.Errorf("invalid start: %w", err)
	}
	count, err := intParam(q.Get("count"), pagination.PageSize)
	if err != nil {
		return criteria, 0, 0, fmt.Errorf("invalid count: %w", err)
	}

	return criteria, start, count, nil
}

func intParam(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

// statusFor maps an error to the HTTP status returned to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, pagination.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ratelimit.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, client.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrNetwork), errors.Is(err, client.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Int("status", status).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "failed to encode response"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, errorResponse{
		Error: err.Error(),
		Class: string(client.ClassOf(err)),
	})
}
