// Package api exposes the exchange authority over HTTP.
//
// Instructions are submitted as encoded instruction data plus positional
// account keys, an expiry and a nonce. Each signature is an ed25519 signature
// over data || account_0 || ... || account_n || expires_at || nonce; the keys
// whose signatures verify become the instruction's signers. A signed message
// executes at most once.
package api

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/authority"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// maxBodyBytes bounds instruction request bodies.
const maxBodyBytes = 64 << 10

// Errors returned for malformed requests.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrInvalidSignature = errors.New("signature verification failed")
)

// Server serves the authority API.
type Server struct {
	program *authority.Program
	events  storage.ExchangeEventStore
	volume  storage.VolumeStore
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// New creates a Server. events and volume usually point at the same store:
// the ledger's event log or the analytics sink.
func New(program *authority.Program, events storage.ExchangeEventStore, volume storage.VolumeStore, logger zerolog.Logger) *Server {
	s := &Server{
		program: program,
		events:  events,
		volume:  volume,
		logger:  logger.With().Str("component", "api").Logger(),
		mux:     http.NewServeMux(),
	}

	s.route("POST /v1/instructions", s.handleInstruction)
	s.route("GET /v1/state", s.handleState)
	s.route("GET /v1/events", s.handleEvents)
	s.route("GET /v1/volume", s.handleVolume)
	s.route("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", observability.Handler())

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// route registers h under pattern, counting and logging every request.
func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		observability.RecordHTTPRequest(pattern, strconv.Itoa(rec.status))
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// SignatureRequest is one signer's signature over the instruction message.
type SignatureRequest struct {
	Pubkey    string `json:"pubkey"`    // base58
	Signature string `json:"signature"` // base58, 64 bytes
}

// InstructionRequest is the body of POST /v1/instructions.
type InstructionRequest struct {
	Data       string             `json:"data"`     // base64 instruction data
	Accounts   []string           `json:"accounts"` // base58, positional
	ExpiresAt  int64              `json:"expires_at"` // unix seconds
	Nonce      uint64             `json:"nonce"`
	Signatures []SignatureRequest `json:"signatures"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Code    uint32 `json:"code,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// Message returns the bytes a signer signs: data, every account key, then
// expiresAt and nonce as little-endian 64-bit integers.
func Message(data []byte, accounts []address.Pubkey, expiresAt int64, nonce uint64) []byte {
	msg := make([]byte, 0, len(data)+len(accounts)*address.PubkeySize+16)
	msg = append(msg, data...)
	for _, a := range accounts {
		msg = append(msg, a[:]...)
	}
	msg = binary.LittleEndian.AppendUint64(msg, uint64(expiresAt))
	return binary.LittleEndian.AppendUint64(msg, nonce)
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	var req InstructionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %w", ErrBadRequest, err))
		return
	}

	data, accounts, signers, once, err := verify(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.program.ExecuteOnce(r.Context(), once, data, accounts, signers)
	if err != nil {
		s.logger.Debug().Err(err).Int("accounts", len(accounts)).Msg("instruction rejected")
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// verify decodes the request and checks every signature against the message.
// The returned Request carries the message digest used to reject reuse.
func verify(req *InstructionRequest) (data []byte, accounts []address.Pubkey, signers token.SignerSet, once authority.Request, err error) {
	data, err = base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return nil, nil, nil, once, fmt.Errorf("%w: data: %w", ErrBadRequest, err)
	}

	accounts = make([]address.Pubkey, len(req.Accounts))
	for i, a := range req.Accounts {
		if accounts[i], err = address.ParsePubkey(a); err != nil {
			return nil, nil, nil, once, fmt.Errorf("%w: account %d: %w", ErrBadRequest, i, err)
		}
	}

	msg := Message(data, accounts, req.ExpiresAt, req.Nonce)
	signers = token.NewSignerSet()
	for i, sr := range req.Signatures {
		key, err := address.ParsePubkey(sr.Pubkey)
		if err != nil {
			return nil, nil, nil, once, fmt.Errorf("%w: signature %d pubkey: %w", ErrBadRequest, i, err)
		}
		sig, err := base58.Decode(sr.Signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return nil, nil, nil, once, fmt.Errorf("%w: signature %d is not a %d-byte base58 value", ErrBadRequest, i, ed25519.SignatureSize)
		}
		if !ed25519.Verify(ed25519.PublicKey(key[:]), msg, sig) {
			return nil, nil, nil, once, fmt.Errorf("%w: %s", ErrInvalidSignature, key)
		}
		signers[key] = struct{}{}
	}

	once = authority.Request{Digest: sha256.Sum256(msg), ExpiresAt: req.ExpiresAt}
	return data, accounts, signers, once, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.program.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if c := q.Get("caller"); c != "" {
		caller, err := address.ParsePubkey(c)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: caller: %w", ErrBadRequest, err))
			return
		}
		events, err := s.events.GetByCaller(r.Context(), caller)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(events))
		return
	}

	from, to, err := timeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.events.GetByTimeRange(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	volume, err := s.volume.DailyVolume(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if volume == nil {
		volume = []*domain.DailyVolume{}
	}
	writeJSON(w, http.StatusOK, volume)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// timeRange parses inclusive unix-second bounds. Missing bounds are open.
func timeRange(fromStr, toStr string) (int64, int64, error) {
	from, to := int64(0), int64(math.MaxInt64)
	var err error
	if fromStr != "" {
		if from, err = strconv.ParseInt(fromStr, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: from: %w", ErrBadRequest, err)
		}
	}
	if toStr != "" {
		if to, err = strconv.ParseInt(toStr, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: to: %w", ErrBadRequest, err)
		}
	}
	if from > to {
		return 0, 0, fmt.Errorf("%w: from %d is after to %d", ErrBadRequest, from, to)
	}
	return from, to, nil
}

func nonNil(events []*domain.ExchangeEvent) []*domain.ExchangeEvent {
	if events == nil {
		return []*domain.ExchangeEvent{}
	}
	return events
}

// writeError maps err onto a status code and an ErrorResponse.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	if e, ok := authority.CodeOf(err); ok {
		resp.Code, resp.Name = e.Code, e.Name
		status = statusOf(e)
	} else {
		switch {
		case errors.Is(err, ErrBadRequest):
			status = http.StatusBadRequest
		case errors.Is(err, ErrInvalidSignature):
			resp.Code, resp.Name = authority.ErrAuthorization.Code, authority.ErrAuthorization.Name
			status = http.StatusUnauthorized
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func statusOf(e *authority.Error) int {
	switch e {
	case authority.ErrInvalidRatio, authority.ErrInvalidAmount,
		authority.ErrInvalidInstruction, authority.ErrAccountMismatch:
		return http.StatusBadRequest
	case authority.ErrAuthorization:
		return http.StatusForbidden
	case authority.ErrNotInitialized:
		return http.StatusNotFound
	case authority.ErrAlreadyInitialized:
		return http.StatusConflict
	case authority.ErrOverflow, authority.ErrInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
