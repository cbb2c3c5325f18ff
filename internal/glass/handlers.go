package glass

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/challenge"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/security"
)

// ChallengeResponse is what a panel submits to disarm.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	Timestamp string `json:"timestamp"`
	Digest    string `json:"digest"`
}

// Challenge is what a panel renders before asking for the PIN.
type Challenge struct {
	Nonce     string `json:"nonce"`
	Timestamp string `json:"timestamp"`
}

// StateResponse is the current security state and any pending arm.
type StateResponse struct {
	State   security.State `json:"state"`
	ArmAt   *time.Time     `json:"arm_at,omitempty"`
	Pending bool           `json:"pending"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Security.State(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "security state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Security.State(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read security state")
		writeInternalError(w, "failed to read security state")
		return
	}
	resp := StateResponse{State: state}
	if s.deps.Arm != nil {
		if at, ok := s.deps.Arm.Pending(); ok {
			resp.ArmAt = &at
			resp.Pending = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleArm schedules (true) or cancels (false) the delayed arm.
func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	if s.deps.Arm == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "delayed arming disabled")
		return
	}
	var arm bool
	if err := json.NewDecoder(r.Body).Decode(&arm); err != nil {
		writeBadRequest(w, "body must be a JSON boolean")
		return
	}
	s.deps.Arm.Schedule(arm, "glass")

	resp := StateResponse{}
	if state, err := s.deps.Security.State(r.Context()); err == nil {
		resp.State = state
	}
	if at, ok := s.deps.Arm.Pending(); ok {
		resp.ArmAt = &at
		resp.Pending = true
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// bridge resolves and validates the bridge named in the path. It writes the
// error response itself and returns ok=false on failure.
func (s *Server) bridge(w http.ResponseWriter, r *http.Request) (id string, pin, psk string, ok bool) {
	id = strings.TrimSpace(chi.URLParam(r, "bridgeId"))
	if id == "" {
		writeBadRequest(w, "missing bridge id")
		return "", "", "", false
	}
	b, found := s.deps.Bridges[id]
	if !found {
		log.Warn().Str("bridge", id).Msg("Request from unknown bridge")
		writeNotFound(w, ErrUnknownBridge.Error())
		return id, "", "", false
	}
	if b.PIN == "" || b.PSK == "" {
		log.Error().Str("bridge", id).Msg("Bridge missing PIN or PSK")
		writeInternalError(w, ErrMisconfiguredBridge.Error())
		return id, "", "", false
	}
	return id, b.PIN, b.PSK, true
}

// handleChallenge issues a nonce for the panel to display while armed.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	id, _, _, ok := s.bridge(w, r)
	if !ok {
		return
	}

	armed, err := s.deps.Security.Armed(r.Context())
	if err != nil {
		writeInternalError(w, "failed to read security state")
		return
	}
	if !armed {
		writeError(w, http.StatusConflict, ErrCodeConflict, "security is not armed")
		return
	}

	nonce, err := s.deps.Authority.Issue()
	if err != nil {
		log.Error().Err(err).Str("bridge", id).Msg("Failed to issue nonce")
		writeInternalError(w, "failed to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, Challenge{
		Nonce:     nonce,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// handleDisarm verifies a challenge response. The nonce is consumed before
// the digest is checked and is never restored.
func (s *Server) handleDisarm(w http.ResponseWriter, r *http.Request) {
	id, pin, psk, ok := s.bridge(w, r)
	if !ok {
		return
	}

	var body ChallengeResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	correlationID := middleware.GetReqID(r.Context())
	if correlationID == "" {
		correlationID = ledger.NewCorrelationID()
	}
	logger := log.With().Str("bridge", id).Str("correlation_id", correlationID).Logger()

	if err := s.deps.Authority.Consume(body.Nonce); err != nil {
		logger.Warn().Err(err).Msg("Disarm rejected")
		s.audit(ledger.EventDisarmRejected, id, correlationID, "invalid_nonce")
		writeBadRequest(w, challenge.ErrInvalidNonce.Error())
		return
	}

	if err := challenge.Verify(psk, pin, body.Timestamp, body.Nonce, body.Digest); err != nil {
		logger.Warn().Err(err).Msg("Disarm rejected")
		s.audit(ledger.EventDisarmRejected, id, correlationID, "digest_mismatch")
		writeUnauthorized(w, challenge.ErrDigestMismatch.Error())
		return
	}

	s.deps.Authority.Clear()
	if s.deps.Arm != nil {
		s.deps.Arm.Stop()
	}
	if err := s.deps.Security.Disarm(r.Context(), "glass:"+id); err != nil {
		logger.Error().Err(err).Msg("Failed to disarm")
		writeInternalError(w, "failed to disarm")
		return
	}

	logger.Info().Msg("Disarmed from panel")
	s.audit(ledger.EventDisarmAccepted, id, correlationID, "")
	writeJSON(w, http.StatusOK, map[string]string{"state": string(security.Disarmed)})
}

func (s *Server) audit(eventType ledger.EventType, bridge, correlationID, reason string) {
	if s.deps.Ledger == nil {
		return
	}
	payload := map[string]any{"bridge": bridge}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := s.deps.Ledger.AppendCorrelated(eventType, "glass", correlationID, payload); err != nil {
		log.Error().Err(err).Str("bridge", bridge).Msg("Failed to record disarm attempt")
	}
}

func (s *Server) handleWakeDismiss(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wake == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "wake light disabled")
		return
	}
	dismissed, err := s.deps.Wake.Dismiss(r.Context(), "http")
	if err != nil {
		log.Error().Err(err).Msg("Wake light dismiss failed")
		writeInternalError(w, "failed to dismiss wake light")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (s *Server) handleListFlags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Flags.Snapshot())
}

// handleSetFlag stores a JSON bool or string; null clears the flag.
func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		writeBadRequest(w, "missing flag key")
		return
	}

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var err error
	switch value.(type) {
	case nil:
		err = s.deps.Flags.Delete(r.Context(), key)
	case bool, string:
		err = s.deps.Flags.Set(r.Context(), key, value)
	default:
		writeBadRequest(w, "flag value must be a boolean, string or null")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("flag", key).Msg("Failed to update flag")
		writeInternalError(w, "failed to update flag")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Flags.Snapshot())
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Rooms == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Rooms.Statuses())
}

