// Package server exposes the ledger over an HTTP JSON API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"RangeLedger/internal/core"
	"RangeLedger/internal/ledger"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/position"
	"RangeLedger/internal/query"
)

// Server wires the query service into an HTTP router.
type Server struct {
	service *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger

	router http.Handler
}

func New(service *query.Service, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		service: service,
		health:  health,
		metrics: metrics,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Post("/positions/mint", s.handleMint)
		api.Post("/positions/burn", s.handleBurn)
		api.Post("/positions/roll", s.handleRoll)
		api.Post("/positions/transfer", s.handleTransfer)

		api.Get("/pools", s.handlePools)
		api.Get("/owners/{owner}/accounts", s.handleOwnerAccounts)
		api.Get("/owners/{owner}/balance/{id}", s.handleBalance)
		api.Get("/pools/{pool}/accounts/{owner}/liquidity", s.handleAccountLiquidity)
		api.Get("/pools/{pool}/accounts/{owner}/premium", s.handlePremium)
		api.Get("/pools/{pool}/accounts/{owner}/fees-base", s.handleFeesBase)
		api.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.log.Warn().Err(err).Msg("failed to encode response")
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// respondError maps engine sentinels onto HTTP status codes.
func (s *Server) respondError(w http.ResponseWriter, endpoint string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrPoolNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrZeroSize),
		errors.Is(err, position.ErrInvalidTokenID),
		errors.Is(err, position.ErrZeroLiquidity),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrReentrant):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrPriceBound),
		errors.Is(err, core.ErrInsufficientLiquidity),
		errors.Is(err, core.ErrTransferFailed),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAccountLiquidity),
		errors.Is(err, ledger.ErrOccupiedDestination),
		errors.Is(err, fpmath.ErrOverflow):
		status = http.StatusUnprocessableEntity
	}
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
	}
	s.respond(w, status, errorBody{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func jsonDecode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
