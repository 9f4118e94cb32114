// Package httpapi is the HTTP surface (spec §6): POST /backtest,
// POST /save_strategy, GET /get_all_strategies, GET /get_strategy.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantedge-go/ruletree/internal/store"
	"github.com/quantedge-go/ruletree/pkg/logging"
	"github.com/quantedge-go/ruletree/pkg/prices"
	"github.com/quantedge-go/ruletree/pkg/result"
	"github.com/quantedge-go/ruletree/pkg/ruletree"
	"github.com/quantedge-go/ruletree/pkg/simulator"
)

// Server wires the price repository and strategy store to an HTTP
// router.
type Server struct {
	router *chi.Mux
	repo   prices.Repository
	store  *store.Store
	log    zerolog.Logger
}

// New builds a Server with CORS wide open, matching the origin service
// (spec SPEC_FULL.md "HTTP surface"), and request logging through
// zerolog.
func New(repo prices.Repository, strategyStore *store.Store) *Server {
	s := &Server{
		router: chi.NewRouter(),
		repo:   repo,
		store:  strategyStore,
		log:    logging.GetLogger("http"),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger(s.log))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	s.router.Post("/backtest", s.handleBacktest)
	s.router.Post("/save_strategy", s.handleSaveStrategy)
	s.router.Get("/get_all_strategies", s.handleGetAllStrategies)
	s.router.Get("/get_strategy", s.handleGetStrategy)

	return s
}

// ServeHTTP lets Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request handled")
		})
	}
}

type backtestRequest struct {
	StartDate         string          `json:"start_date"`
	EndDate           string          `json:"end_date"`
	StartingCapital   float64         `json:"starting_capital"`
	MonthlyInvestment float64         `json:"monthly_investment"`
	Rules             json.RawMessage `json:"rules"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid request body", err.Error())
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid start_date", err.Error())
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid end_date", err.Error())
		return
	}

	var root ruletree.Node
	if err := json.Unmarshal(req.Rules, &root); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid rules", err.Error())
		return
	}

	ctx := r.Context()
	simResult, err := simulator.Run(ctx, s.repo, root, start, end, req.StartingCapital, req.MonthlyInvestment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "backtest failed", err.Error())
		return
	}

	portfolioValues, spyValues, dates, err := simulator.Value(s.repo, simResult, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "valuation failed", err.Error())
		return
	}

	resp := result.Assemble(simResult.Portfolio, simResult.Benchmark, portfolioValues, spyValues, dates)
	writeJSON(w, http.StatusOK, resp)
}

type saveStrategyRequest struct {
	Name   string          `json:"name"`
	UserID string          `json:"user_id"`
	Rules  json.RawMessage `json:"rules"`
}

func (s *Server) handleSaveStrategy(w http.ResponseWriter, r *http.Request) {
	var req saveStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid request body", err.Error())
		return
	}

	id, err := s.store.Save(req.Name, req.UserID, req.Rules)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "strategy_id": id})
}

func (s *Server) handleGetAllStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.store.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("strategy_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "strategy not found", "invalid strategy_id")
		return
	}

	st, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "strategy not found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, result.ErrorResponse{Error: message, Details: details})
}
