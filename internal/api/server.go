package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"rwaScope/internal/metrics"
	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Server exposes the read API over the store plus health and scrape
// endpoints. The only write surface is operation intake; everything
// else mutates through the pipeline.
type Server struct {
	store      storage.Store
	aggregator *metrics.Aggregator
	networks   []string
	logger     *zap.Logger
}

func NewServer(store storage.Store, aggregator *metrics.Aggregator, networks []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, aggregator: aggregator, networks: networks, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/transfers", s.handleTransfers)
	mux.HandleFunc("GET /v1/violations", s.handleViolations)
	mux.HandleFunc("GET /v1/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("GET /v1/operations", s.handleListOperations)
	mux.HandleFunc("POST /v1/operations", s.handleRecordOperation)
	mux.HandleFunc("GET /v1/metrics/networks/{network}", s.handleNetworkMetrics)
	mux.HandleFunc("GET /v1/metrics/global", s.handleGlobalMetrics)
	mux.HandleFunc("GET /v1/snapshots", s.handleSnapshots)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.EventFilter{
		Network:        q.Get("network"),
		Address:        q.Get("address"),
		TxHash:         q.Get("tx_hash"),
		IncludeRemoved: q.Get("include_removed") == "true",
		Limit:          intParam(q.Get("limit"), 100),
		Offset:         intParam(q.Get("offset"), 0),
	}
	filter.FromBlock = uintParam(q.Get("from_block"))
	filter.ToBlock = uintParam(q.Get("to_block"))
	filter.FromTime = uintParam(q.Get("from_time"))
	filter.ToTime = uintParam(q.Get("to_time"))

	events, total, err := s.store.QueryEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("event query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondPage(w, events, total, filter.Limit, filter.Offset)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TransferFilter{
		Network: q.Get("network"),
		Address: q.Get("address"),
		Limit:   intParam(q.Get("limit"), 100),
		Offset:  intParam(q.Get("offset"), 0),
	}
	filter.FromBlock = uintParam(q.Get("from_block"))
	filter.ToBlock = uintParam(q.Get("to_block"))

	transfers, total, err := s.store.QueryTransfers(r.Context(), filter)
	if err != nil {
		s.logger.Error("transfer query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondPage(w, transfers, total, filter.Limit, filter.Offset)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 100)
	offset := intParam(q.Get("offset"), 0)

	violations, total, err := s.store.QueryViolations(r.Context(), q.Get("network"), limit, offset)
	if err != nil {
		s.logger.Error("violation query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondPage(w, violations, total, limit, offset)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	out := make([]model.Checkpoint, 0, len(s.networks))
	for _, network := range s.networks {
		cp, err := s.store.GetCheckpoint(r.Context(), network)
		if err != nil {
			s.logger.Error("checkpoint read failed",
				zap.String("network", network), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "checkpoint read failed")
			return
		}
		out = append(out, cp)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.store.ListOperations(r.Context(), r.URL.Query().Get("network"))
	if err != nil {
		s.logger.Error("operation query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, ops)
}

// handleRecordOperation registers a submitted transaction for
// confirmation tracking. The confirmer resolves it once the receipt
// lands.
func (s *Server) handleRecordOperation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		Network     string `json:"network"`
		Type        string `json:"type"`
		TxHash      string `json:"tx_hash"`
		From        string `json:"from"`
		To          string `json:"to"`
		UserAddress string `json:"user_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.knownNetwork(req.Network) {
		respondError(w, http.StatusBadRequest, "unknown network")
		return
	}
	if req.TxHash == "" {
		respondError(w, http.StatusBadRequest, "tx_hash is required")
		return
	}
	opType := model.OperationType(req.Type)
	switch opType {
	case model.OpDeployment, model.OpTransfer, model.OpBridgeTransfer,
		model.OpIdentityVerification, model.OpAgentOperation:
	default:
		respondError(w, http.StatusBadRequest, "unknown operation type")
		return
	}

	op := model.TrackedOperation{
		ID:          req.ID,
		Network:     req.Network,
		Type:        opType,
		Status:      model.OpPending,
		TxHash:      req.TxHash,
		From:        req.From,
		To:          req.To,
		UserAddress: req.UserAddress,
		RecordedAt:  time.Now().UTC(),
	}
	if op.ID == "" {
		op.ID = req.Network + ":" + req.TxHash
	}
	if err := s.store.RecordOperation(r.Context(), op); err != nil {
		s.logger.Error("operation intake failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "record failed")
		return
	}
	respondJSON(w, http.StatusCreated, op)
}

func (s *Server) handleNetworkMetrics(w http.ResponseWriter, r *http.Request) {
	network := r.PathValue("network")
	if !s.knownNetwork(network) {
		respondError(w, http.StatusNotFound, "unknown network")
		return
	}
	m, err := s.aggregator.ComputeNetwork(r.Context(), network)
	if err != nil {
		s.logger.Error("metrics computation failed",
			zap.String("network", network), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "metrics computation failed")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleGlobalMetrics(w http.ResponseWriter, r *http.Request) {
	reports := make([]model.NetworkMetrics, 0, len(s.networks))
	for _, network := range s.networks {
		m, err := s.aggregator.ComputeNetwork(r.Context(), network)
		if err != nil {
			s.logger.Error("metrics computation failed",
				zap.String("network", network), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "metrics computation failed")
			return
		}
		reports = append(reports, m)
	}
	respondJSON(w, http.StatusOK, metrics.ComputeGlobal(reports))
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snapshots, err := s.store.ListSnapshots(r.Context(), q.Get("network"), intParam(q.Get("limit"), 30))
	if err != nil {
		s.logger.Error("snapshot query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, snapshots)
}

func (s *Server) knownNetwork(network string) bool {
	for _, n := range s.networks {
		if n == network {
			return true
		}
	}
	return false
}

func respondPage(w http.ResponseWriter, items any, total, limit, offset int) {
	respondJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func uintParam(raw string) *uint64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
