// Package server is the single-purpose HTTP relay in front of the namespace
// upstream and the attestation chain: name availability, registration,
// owner lookups and verification status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"letspay/internal/config"
	"letspay/internal/registrar"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// VerificationSource answers whether an account has a mined attestation.
type VerificationSource interface {
	Verified(ctx context.Context, account common.Address) (bool, error)
}

type Server struct {
	cfg         *config.AppConfig
	dir         registrar.Directory
	verifier    VerificationSource
	metrics     *metricsRegistry
	httpServer  *http.Server
	rpcHealthFn func(context.Context) error
	log         zerolog.Logger
}

func NewServer(cfg *config.AppConfig, dir registrar.Directory, verifier VerificationSource, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		dir:      dir,
		verifier: verifier,
		metrics:  newMetricsRegistry(),
		log:      logger.With().Str("component", "server").Logger(),
	}

	if checker, ok := verifier.(interface{ Ping(context.Context) error }); ok {
		s.rpcHealthFn = checker.Ping
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/register-subname", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/ens-availability/{label}", s.handleAvailability).Methods(http.MethodGet)
	api.HandleFunc("/ens-subnames/{owner}", s.handleSubnames).Methods(http.MethodGet)
	api.HandleFunc("/verification-status/{account}", s.handleVerificationStatus).Methods(http.MethodGet)
	api.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(corsMiddleware(r)),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("relay listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type registerRequest struct {
	Label string `json:"label"`
	Owner string `json:"owner"`
}

type registerResponse struct {
	Success bool           `json:"success"`
	Subname registrar.Name `json:"subname"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	label := strings.ToLower(strings.TrimSpace(payload.Label))
	if label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if !common.IsHexAddress(payload.Owner) {
		writeError(w, http.StatusBadRequest, "owner must be a valid address")
		return
	}

	name, err := s.createWithRetry(r.Context(), label, payload.Owner)
	if err != nil {
		s.metrics.incRegistration("failed")
		s.log.Error().Err(err).Str("label", label).Msg("subname registration failed")
		writeError(w, http.StatusBadGateway, "failed to register subname: "+err.Error())
		return
	}

	s.metrics.incRegistration("created")
	writeJSON(w, http.StatusOK, registerResponse{Success: true, Subname: name})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	label := strings.ToLower(mux.Vars(r)["label"])
	fullName := registrar.FullName(label, s.cfg.Registrar.ParentName)

	available, err := s.dir.IsAvailable(r.Context(), fullName)
	if err != nil {
		s.metrics.incAvailability("failed")
		writeError(w, http.StatusBadGateway, "availability check failed: "+err.Error())
		return
	}

	s.metrics.incAvailability("ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": available,
		"subname":   fullName,
	})
}

func (s *Server) handleSubnames(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	if !common.IsHexAddress(owner) {
		writeError(w, http.StatusBadRequest, "owner must be a valid address")
		return
	}

	names, err := s.dir.ListByOwner(r.Context(), s.cfg.Registrar.ParentName, owner)
	if err != nil {
		s.metrics.incLookup("failed")
		writeError(w, http.StatusBadGateway, "subname lookup failed: "+err.Error())
		return
	}
	if names == nil {
		names = []registrar.Name{}
	}

	s.metrics.incLookup("ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{"subnames": names})
}

func (s *Server) handleVerificationStatus(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "account must be a valid address")
		return
	}
	if s.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "verification source not configured")
		return
	}

	verified, err := s.verifier.Verified(r.Context(), common.HexToAddress(account))
	if err != nil {
		s.metrics.incVerification("failed")
		writeError(w, http.StatusBadGateway, "verification check failed: "+err.Error())
		return
	}

	s.metrics.incVerification("ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{"verified": verified})
}

// createWithRetry pushes the registration through the upstream with bounded
// backoff. Non-retriable upstream answers fail immediately.
func (s *Server) createWithRetry(ctx context.Context, label, owner string) (registrar.Name, error) {
	attempts := s.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := s.cfg.Retry.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for i := 1; i <= attempts; i++ {
		name, err := s.dir.CreateSubname(ctx, label, owner)
		if err == nil {
			s.metrics.incRetry("success")
			return name, nil
		}
		if !isRetryable(err) || i == attempts {
			s.metrics.incRetry("failed")
			return registrar.Name{}, err
		}

		s.metrics.incRetry("retry")
		sleep := backoff
		if s.cfg.Retry.MaxBackoff > 0 && sleep > s.cfg.Retry.MaxBackoff {
			sleep = s.cfg.Retry.MaxBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return registrar.Name{}, ctx.Err()
		}

		if s.cfg.Retry.BackoffMultiplier > 1 {
			backoff = backoff * time.Duration(s.cfg.Retry.BackoffMultiplier)
		}
	}

	return registrar.Name{}, errors.New("exhausted retries")
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "taken") {
		return false
	}
	if strings.Contains(msg, "invalid") {
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status string      `json:"status"`
		RPC    interface{} `json:"rpc"`
	}{
		Status: status,
		RPC:    rpcInfo,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
