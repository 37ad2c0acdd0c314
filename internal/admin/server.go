// Package admin exposes the engine's operational HTTP API: synchronous
// decisions, asynchronous classifier operations, QoS observation ingest
// and per-UE handover history.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/engine"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/qos"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/scheduler"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracker"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MB

	// defaultAwaitTimeout bounds how long a result request blocks when the
	// caller does not pass timeout_s.
	defaultAwaitTimeout = 30 * time.Second
	maxAwaitTimeout     = 5 * time.Minute
)

// allowedServiceTypes defines the valid traffic classes for API input
// validation.
var allowedServiceTypes = map[model.ServiceType]bool{
	model.ServiceTypeEMBB:  true,
	model.ServiceTypeURLLC: true,
	model.ServiceTypeMMTC:  true,
	model.ServiceTypeVoice: true,
}

var allowedOperationKinds = map[scheduler.Kind]bool{
	scheduler.KindPredict:  true,
	scheduler.KindTrain:    true,
	scheduler.KindEvaluate: true,
}

// Decider evaluates one snapshot into a decision. In production this is
// satisfied by *engine.Engine, but tests can provide a simple mock.
type Decider interface {
	Decide(ctx context.Context, snap model.UESnapshot) model.Decision
}

// OperationScheduler is the async-operation surface the server drives.
// Satisfied by *scheduler.Scheduler.
type OperationScheduler interface {
	Submit(kind scheduler.Kind, payload any, priority int) (string, error)
	Await(ctx context.Context, id string, timeout time.Duration) (any, error)
	Cancel(id string) bool
	Get(id string) (scheduler.OperationView, bool)
	Stats() scheduler.Stats
}

// Server provides the HTTP API for operational management of the engine.
type Server struct {
	decider   Decider
	sched     OperationScheduler
	profiler  *qos.AntennaQoSProfiler
	handovers *tracker.HandoverTracker
	health    *engine.PredictorHealth
	logger    *slog.Logger
}

// NewServer creates an API server. The scheduler, profiler, handover
// tracker and health provider are optional; endpoints backed by an
// absent collaborator answer 503.
func NewServer(decider Decider, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		decider: decider,
		logger:  logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies for the API server.
type ServerOption func(*Server)

// WithScheduler wires the async operation scheduler.
func WithScheduler(sched OperationScheduler) ServerOption {
	return func(s *Server) { s.sched = sched }
}

// WithProfiler wires the QoS compliance profiler.
func WithProfiler(p *qos.AntennaQoSProfiler) ServerOption {
	return func(s *Server) { s.profiler = p }
}

// WithHandoverTracker wires the per-UE handover history.
func WithHandoverTracker(t *tracker.HandoverTracker) ServerOption {
	return func(s *Server) { s.handovers = t }
}

// WithHealth wires the predictor health reporter.
func WithHealth(h *engine.PredictorHealth) ServerOption {
	return func(s *Server) { s.health = h }
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/decide", s.handleDecide)
	mux.HandleFunc("POST /api/v1/operations", s.handleSubmitOperation)
	mux.HandleFunc("GET /api/v1/operations/{id}", s.handleGetOperation)
	mux.HandleFunc("GET /api/v1/operations/{id}/result", s.handleAwaitOperation)
	mux.HandleFunc("DELETE /api/v1/operations/{id}", s.handleCancelOperation)
	mux.HandleFunc("POST /api/v1/qos/observations", s.handleRecordObservation)
	mux.HandleFunc("GET /api/v1/qos/profiles", s.handleGetProfile)
	mux.HandleFunc("GET /api/v1/ues/{id}/handovers", s.handleHandoverHistory)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v. Returns
// false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// --- Decision endpoint ---

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var snap model.UESnapshot
	if !decodeJSONBody(w, r, &snap) {
		return
	}

	if snap.UEID == "" || snap.ConnectedCellID == "" {
		http.Error(w, `{"error":"ue_id and connected_cell_id are required"}`, http.StatusBadRequest)
		return
	}
	if snap.ServiceType != "" && !allowedServiceTypes[snap.ServiceType] {
		http.Error(w, `{"error":"invalid service_type value"}`, http.StatusBadRequest)
		return
	}

	decision := s.decider.Decide(r.Context(), snap)
	writeJSON(w, http.StatusOK, decision)
}

// --- Async operation endpoints ---

type sampleRequest struct {
	Features map[string]float64 `json:"features"`
	Label    string             `json:"label"`
}

type submitOperationRequest struct {
	Kind     string             `json:"kind"`
	Priority int                `json:"priority"`
	Features map[string]float64 `json:"features,omitempty"`
	Samples  []sampleRequest    `json:"samples,omitempty"`
}

func toSamples(reqs []sampleRequest) []predictor.Sample {
	samples := make([]predictor.Sample, len(reqs))
	for i, r := range reqs {
		samples[i] = predictor.Sample{Features: r.Features, Label: r.Label}
	}
	return samples
}

func (s *Server) handleSubmitOperation(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, `{"error":"scheduler not available"}`, http.StatusServiceUnavailable)
		return
	}

	var req submitOperationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	kind := scheduler.Kind(req.Kind)
	if !allowedOperationKinds[kind] {
		http.Error(w, `{"error":"kind must be predict, train, or evaluate"}`, http.StatusBadRequest)
		return
	}

	var payload any
	switch kind {
	case scheduler.KindPredict:
		if len(req.Features) == 0 {
			http.Error(w, `{"error":"features are required for predict"}`, http.StatusBadRequest)
			return
		}
		payload = scheduler.PredictPayload{Features: req.Features}
	case scheduler.KindTrain:
		if len(req.Samples) == 0 {
			http.Error(w, `{"error":"samples are required for train"}`, http.StatusBadRequest)
			return
		}
		payload = scheduler.TrainPayload{Samples: toSamples(req.Samples)}
	case scheduler.KindEvaluate:
		if len(req.Samples) == 0 {
			http.Error(w, `{"error":"samples are required for evaluate"}`, http.StatusBadRequest)
			return
		}
		payload = scheduler.EvaluatePayload{Samples: toSamples(req.Samples)}
	}

	id, err := s.sched.Submit(kind, payload, req.Priority)
	if err != nil {
		if errors.Is(err, scheduler.ErrQueueFull) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"operation queue is full"}`, http.StatusTooManyRequests)
			return
		}
		s.logger.Error("operation submit failed", "kind", req.Kind, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.logger.Info("operation submitted via API",
		"operation_id", id,
		"kind", req.Kind,
		"priority", req.Priority,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"operation_id": id})
}

type operationResponse struct {
	ID          string     `json:"operation_id"`
	Kind        string     `json:"kind"`
	Priority    int        `json:"priority"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func toOperationResponse(v scheduler.OperationView) operationResponse {
	resp := operationResponse{
		ID:        v.ID,
		Kind:      string(v.Kind),
		Priority:  v.Priority,
		State:     string(v.State),
		CreatedAt: v.CreatedAt,
		Result:    v.Result,
	}
	if !v.StartedAt.IsZero() {
		t := v.StartedAt
		resp.StartedAt = &t
	}
	if !v.CompletedAt.IsZero() {
		t := v.CompletedAt
		resp.CompletedAt = &t
	}
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}
	return resp
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, `{"error":"scheduler not available"}`, http.StatusServiceUnavailable)
		return
	}

	view, ok := s.sched.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, `{"error":"operation not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toOperationResponse(view))
}

func (s *Server) handleAwaitOperation(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, `{"error":"scheduler not available"}`, http.StatusServiceUnavailable)
		return
	}

	timeout := defaultAwaitTimeout
	if raw := r.URL.Query().Get("timeout_s"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs <= 0 {
			http.Error(w, `{"error":"timeout_s must be a positive number"}`, http.StatusBadRequest)
			return
		}
		timeout = time.Duration(secs * float64(time.Second))
		if timeout > maxAwaitTimeout {
			timeout = maxAwaitTimeout
		}
	}

	id := r.PathValue("id")
	result, err := s.sched.Await(r.Context(), id, timeout)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrNotFound):
			http.Error(w, `{"error":"operation not found"}`, http.StatusNotFound)
		case errors.Is(err, scheduler.ErrTimeout):
			http.Error(w, `{"error":"operation timed out and was cancelled"}`, http.StatusGatewayTimeout)
		case errors.Is(err, scheduler.ErrCancelled):
			http.Error(w, `{"error":"operation was cancelled"}`, http.StatusConflict)
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"operation_id": id,
				"state":        string(scheduler.StateFailed),
				"error":        err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operation_id": id,
		"state":        string(scheduler.StateCompleted),
		"result":       result,
	})
}

func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, `{"error":"scheduler not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	if !s.sched.Cancel(id) {
		http.Error(w, `{"error":"operation not found or already terminal"}`, http.StatusConflict)
		return
	}

	s.logger.Info("operation cancelled via API", "operation_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// --- QoS endpoints ---

type qosObservationRequest struct {
	AntennaID   string             `json:"antenna_id"`
	ServiceType string             `json:"service_type"`
	Metrics     map[string]float64 `json:"metrics"`
	Passed      bool               `json:"passed"`
	Timestamp   *time.Time         `json:"timestamp,omitempty"`
}

func (s *Server) handleRecordObservation(w http.ResponseWriter, r *http.Request) {
	if s.profiler == nil {
		http.Error(w, `{"error":"qos profiler not available"}`, http.StatusServiceUnavailable)
		return
	}

	var req qosObservationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.AntennaID == "" || req.ServiceType == "" {
		http.Error(w, `{"error":"antenna_id and service_type are required"}`, http.StatusBadRequest)
		return
	}
	st := model.ServiceType(req.ServiceType)
	if !allowedServiceTypes[st] {
		http.Error(w, `{"error":"invalid service_type value"}`, http.StatusBadRequest)
		return
	}

	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	s.profiler.Record(req.AntennaID, st, req.Metrics, req.Passed, ts)

	writeJSON(w, http.StatusCreated, map[string]bool{"recorded": true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiler == nil {
		http.Error(w, `{"error":"qos profiler not available"}`, http.StatusServiceUnavailable)
		return
	}

	antennaID := r.URL.Query().Get("antenna_id")
	st := model.ServiceType(r.URL.Query().Get("service_type"))
	if antennaID == "" || st == "" {
		http.Error(w, `{"error":"antenna_id and service_type query params required"}`, http.StatusBadRequest)
		return
	}
	if !allowedServiceTypes[st] {
		http.Error(w, `{"error":"invalid service_type value"}`, http.StatusBadRequest)
		return
	}

	prof, ok := s.profiler.GetProfile(antennaID, st)
	if !ok {
		http.Error(w, `{"error":"no samples recorded for antenna/service_type"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

// --- UE history endpoint ---

type handoverHistoryResponse struct {
	UEID      string                   `json:"ue_id"`
	Handovers []tracker.HandoverRecord `json:"handovers"`
}

func (s *Server) handleHandoverHistory(w http.ResponseWriter, r *http.Request) {
	if s.handovers == nil {
		http.Error(w, `{"error":"handover tracker not available"}`, http.StatusServiceUnavailable)
		return
	}

	ueID := r.PathValue("id")
	writeJSON(w, http.StatusOK, handoverHistoryResponse{
		UEID:      ueID,
		Handovers: s.handovers.History(ueID),
	})
}

// --- Status and health endpoints ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if s.sched != nil {
		resp["scheduler"] = s.sched.Stats()
	}
	if s.handovers != nil {
		resp["handover_tracker"] = s.handovers.Stats()
	}
	if s.profiler != nil {
		resp["qos_profiler"] = s.profiler.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := s.health.Status()
	code := http.StatusOK
	if status == engine.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"predictor": string(status)})
}
