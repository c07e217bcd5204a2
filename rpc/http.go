package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	nativecommon "harvestmart/native/common"
	"harvestmart/native/escrow"
	"harvestmart/native/fees"
	"harvestmart/native/presale"
	"harvestmart/storage"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codePrecondition   = -32021
	codeNotFound       = -32022
	codeConflict       = -32024
)

// RoleView is the capability registry consulted for operator-only methods.
type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

// Registry extends the role view with the service-wide pause switches.
type Registry interface {
	RoleView
	SetPaused(module string, paused bool) error
	IsPaused(module string) bool
}

// ServerConfig carries the transport-level settings of the RPC server.
type ServerConfig struct {
	// AuthToken, when set, is required as a bearer token on every mutating
	// method.
	AuthToken       string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Server exposes the custody core over JSON-RPC 2.0.
type Server struct {
	escrow  *escrow.Engine
	presale *presale.Engine
	fees    *fees.Calculator
	roles   Registry
	audit   *AuditStore
	metrics *Metrics
	log     *slog.Logger
	cfg     ServerConfig

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires the engines into an RPC server. The audit store is
// optional; pass nil to disable audit rows.
func NewServer(escrowEngine *escrow.Engine, presaleEngine *presale.Engine, calc *fees.Calculator, roles Registry, audit *AuditStore, logger *slog.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 25.0
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}
	return &Server{
		escrow:   escrowEngine,
		presale:  presaleEngine,
		fees:     calc,
		roles:    roles,
		audit:    audit,
		metrics:  NewMetrics("harvestmart"),
		log:      logger,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Router mounts the RPC endpoint plus health and metrics surfaces.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post("/rpc", s.handle)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status > 0 && status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) limiterFor(remote string) *rate.Limiter {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSec), s.cfg.RateLimitBurst)
		s.limiters[host] = lim
	}
	return lim
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type methodSpec struct {
	fn       handlerFunc
	mutating bool
}

func (s *Server) methods() map[string]methodSpec {
	return map[string]methodSpec{
		"escrow_create":          {fn: s.handleEscrowCreate, mutating: true},
		"escrow_confirmDelivery": {fn: s.handleEscrowConfirmDelivery, mutating: true},
		"escrow_autoRelease":     {fn: s.handleEscrowAutoRelease, mutating: true},
		"escrow_requestRefund":   {fn: s.handleEscrowRequestRefund, mutating: true},
		"escrow_resolveDispute":  {fn: s.handleEscrowResolveDispute, mutating: true},
		"escrow_sweepExpired":    {fn: s.handleEscrowSweepExpired, mutating: true},
		"escrow_get":             {fn: s.handleEscrowGet},
		"escrow_listByStatus":    {fn: s.handleEscrowListByStatus},

		"presale_create":              {fn: s.handlePresaleCreate, mutating: true},
		"presale_purchase":            {fn: s.handlePresalePurchase, mutating: true},
		"presale_refund":              {fn: s.handlePresaleRefund, mutating: true},
		"presale_addToWhitelist":      {fn: s.handlePresaleAddToWhitelist, mutating: true},
		"presale_removeFromWhitelist": {fn: s.handlePresaleRemoveFromWhitelist, mutating: true},
		"presale_setActive":           {fn: s.handlePresaleSetActive, mutating: true},
		"presale_get":                 {fn: s.handlePresaleGet},
		"presale_buyerUnits":          {fn: s.handlePresaleBuyerUnits},

		"fees_setRate":      {fn: s.handleFeesSetRate, mutating: true},
		"fees_setCollector": {fn: s.handleFeesSetCollector, mutating: true},
		"fees_info":         {fn: s.handleFeesInfo},

		"admin_setPaused": {fn: s.handleAdminSetPaused, mutating: true},
		"admin_pauses":    {fn: s.handleAdminPauses},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.limiterFor(r.RemoteAddr).Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", "too many requests")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request body too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	spec, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	if spec.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.observe(req.Method, "unauthorized", 0)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	start := time.Now()
	spec.fn(&observedWriter{ResponseWriter: w, server: s, method: req.Method, start: start, r: r, mutating: spec.mutating}, r, &req)
}

// observedWriter records metrics and audit rows once the handler commits to
// a status code.
type observedWriter struct {
	http.ResponseWriter
	server   *Server
	method   string
	start    time.Time
	r        *http.Request
	mutating bool
	done     bool
	status   int
	caller   string
}

// noteCaller records the caller identity a mutating handler parsed from its
// params, for the audit row. Identity claims come from the request body, not
// from headers.
func noteCaller(w http.ResponseWriter, caller string) {
	if ow, ok := w.(*observedWriter); ok {
		ow.caller = caller
	}
}

func (o *observedWriter) WriteHeader(status int) {
	o.status = status
	o.ResponseWriter.WriteHeader(status)
}

func (o *observedWriter) Write(p []byte) (int, error) {
	if !o.done {
		o.done = true
		outcome := "ok"
		if o.status >= http.StatusBadRequest {
			outcome = "error"
		}
		o.server.observe(o.method, outcome, time.Since(o.start).Seconds())
		if o.mutating && o.server.audit != nil {
			errKind := ""
			if outcome != "ok" {
				errKind = extractErrKind(p)
			}
			if err := o.server.audit.Record(o.r.Context(), o.method, o.caller, outcome, errKind); err != nil {
				o.server.log.Warn("audit record failed", "method", o.method, "error", err)
			}
		}
	}
	return o.ResponseWriter.Write(p)
}

func extractErrKind(p []byte) string {
	var resp RPCResponse
	if err := json.Unmarshal(p, &resp); err != nil || resp.Error == nil {
		return ""
	}
	if kind, ok := resp.Error.Data.(string); ok {
		return kind
	}
	return resp.Error.Message
}

func (s *Server) observe(method, outcome string, seconds float64) {
	s.metrics.Observe(method, outcome, seconds)
}

// writeEngineError maps the stable engine error kinds onto HTTP statuses and
// JSON-RPC codes. The raw kind string rides along in the data field so
// downstream consumers can key off it verbatim.
func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code, message := classifyError(err)
	writeError(w, status, id, code, message, err.Error())
}

func classifyError(err error) (int, int, string) {
	switch {
	case errors.Is(err, escrow.ErrUnauthorized), errors.Is(err, presale.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized, "unauthorized"
	case errors.Is(err, escrow.ErrEscrowNotFound), errors.Is(err, presale.ErrPresaleNotFound):
		return http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, escrow.ErrInvalidStatus), errors.Is(err, escrow.ErrNotInDispute):
		return http.StatusConflict, codeConflict, "conflict"
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidBuyer),
		errors.Is(err, escrow.ErrInvalidSeller),
		errors.Is(err, escrow.ErrInvalidDeadline),
		errors.Is(err, presale.ErrInvalidTimeRange),
		errors.Is(err, presale.ErrInvalidPurchaseLimits),
		errors.Is(err, presale.ErrInvalidSupply),
		errors.Is(err, presale.ErrInvalidUnitPrice),
		errors.Is(err, fees.ErrFeeTooHigh),
		errors.Is(err, fees.ErrInvalidAddress):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, escrow.ErrTooEarly),
		errors.Is(err, escrow.ErrDeadlinePassed),
		errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, storage.ErrInsufficientBalance),
		errors.Is(err, presale.ErrPresaleInactive),
		errors.Is(err, presale.ErrPresaleNotStarted),
		errors.Is(err, presale.ErrPresaleEnded),
		errors.Is(err, presale.ErrNotEligible),
		errors.Is(err, presale.ErrBelowMinimum),
		errors.Is(err, presale.ErrExceedsMaximum),
		errors.Is(err, presale.ErrExceedsSupply),
		errors.Is(err, presale.ErrInsufficientPayment),
		errors.Is(err, presale.ErrNoPurchaseFound),
		errors.Is(err, presale.ErrRefundUnavailable),
		errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusUnprocessableEntity, codePrecondition, "precondition_failed"
	default:
		return http.StatusInternalServerError, codeServerError, "internal_error"
	}
}

func singleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}
