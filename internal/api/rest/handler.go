package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/metrics"
	"github.com/halide-works/aperture-drop/internal/observations"
	"github.com/halide-works/aperture-drop/internal/orchestrator"
	"github.com/halide-works/aperture-drop/internal/relay"
	"github.com/halide-works/aperture-drop/internal/trustgate"
)

// readinessTimeout bounds the ledger probe behind /ready.
const readinessTimeout = 5 * time.Second

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// SubmitObservation runs a claim attempt end to end
	// POST /api/v1/submit-observation
	SubmitObservation(c *gin.Context)

	// AvailableTokens lists tokens that are deposited and unclaimed
	// GET /api/v1/available-tokens
	AvailableTokens(c *gin.Context)

	// HasClaimed reports whether an address already claimed
	// GET /api/v1/has-claimed/:address
	HasClaimed(c *gin.Context)

	// GetObservation returns the observation recorded for a token
	// GET /api/v1/observation/:tokenId
	GetObservation(c *gin.Context)

	// ListObservations returns every recorded observation
	// GET /api/v1/observations
	ListObservations(c *gin.Context)

	// TxStatus reports delivery progress for a claim handle
	// GET /api/v1/tx-status/:handle
	TxStatus(c *gin.Context)

	// ResetTrustGate clears the trust record for an origin (admin)
	// POST /api/v1/admin/trust-gate/reset/:origin
	ResetTrustGate(c *gin.Context)

	// InvalidateObservations drops the observation cache (admin)
	// POST /api/v1/admin/observations/invalidate
	InvalidateObservations(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// Live reports process liveness
	// GET /live
	Live(c *gin.Context)

	// Ready reports whether the ledger backend is reachable
	// GET /ready
	Ready(c *gin.Context)

	// Metrics exposes the service counters
	// GET /metrics
	Metrics(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	orchestrator *orchestrator.Orchestrator
	reader       ledger.Reader
	index        *observations.Index
	statuses     *relay.StatusStore
	gate         trustgate.Gate
	metrics      *metrics.Metrics
	txURLPrefix  string
}

// NewHandler creates a new REST API handler
func NewHandler(
	orch *orchestrator.Orchestrator,
	reader ledger.Reader,
	index *observations.Index,
	statuses *relay.StatusStore,
	gate trustgate.Gate,
	m *metrics.Metrics,
	txURLPrefix string,
) Handler {
	return &handler{
		orchestrator: orch,
		reader:       reader,
		index:        index,
		statuses:     statuses,
		gate:         gate,
		metrics:      m,
		txURLPrefix:  txURLPrefix,
	}
}

// SubmitObservation runs a claim attempt end to end
func (h *handler) SubmitObservation(c *gin.Context) {
	var req SubmitObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) {
		respondValidationError(c, "invalid Ethereum address")
		return
	}

	outcome, err := h.orchestrator.ProcessClaim(c.Request.Context(), orchestrator.Request{
		Claimant: common.HexToAddress(req.Address),
		TokenID:  domain.TokenID(req.TokenID),
		Text:     req.Text,
		Origin:   c.ClientIP(),
	})
	if err != nil {
		h.respondClaimError(c, err)
		return
	}

	if outcome.Evaluation.Outcome == domain.OutcomeUnavailable {
		respondWithError(c, http.StatusServiceUnavailable, errCodeEvaluatorUnavailable, outcome.Message)
		return
	}

	c.JSON(http.StatusOK, h.toSubmitResponse(outcome))
}

// respondClaimError maps orchestrator errors onto the error envelope.
func (h *handler) respondClaimError(c *gin.Context, err error) {
	var blocked *trustgate.BlockedError
	switch {
	case errors.As(err, &blocked):
		c.Header("Retry-After", fmt.Sprintf("%d", int(blocked.RetryAfter.Seconds()+0.5)))
		respondWithError(c, http.StatusTooManyRequests, errCodeOriginBlocked,
			"Too many rejected attempts from this origin", blocked.Error())

	case errors.Is(err, domain.ErrInvalidTokenID),
		errors.Is(err, domain.ErrTextLength),
		errors.Is(err, domain.ErrZeroRecipient):
		respondValidationError(c, err.Error())

	case errors.Is(err, domain.ErrAlreadyClaimed):
		respondWithError(c, http.StatusConflict, errCodeAlreadyClaimed, "This address has already claimed a token")

	case errors.Is(err, domain.ErrTokenUnavailable):
		respondWithError(c, http.StatusConflict, errCodeTokenUnavailable, "This token is not available")

	default:
		respondInternalError(c, err, "Failed to process claim")
	}
}

func (h *handler) toSubmitResponse(out *orchestrator.Outcome) SubmitObservationResponse {
	resp := SubmitObservationResponse{
		Approved:     out.Evaluation.Outcome == domain.OutcomeApproved,
		SoftReject:   out.Evaluation.Outcome == domain.OutcomeSoftReject,
		Score:        out.Evaluation.Score,
		Reason:       out.Evaluation.Reason,
		FollowUp:     out.Evaluation.FollowUp,
		Message:      out.Message,
		Claimed:      out.Claimed,
		Broadcasting: out.Broadcasting,
	}

	if out.Relay != nil {
		result := &ClaimResultDTO{TxHandle: out.Relay.Handle}
		if out.Relay.TxHash != (common.Hash{}) {
			result.TxHash = out.Relay.TxHash.Hex()
			result.EtherscanURL = h.txURLPrefix + out.Relay.TxHash.Hex()
		}
		resp.ClaimResult = result
	}
	resp.FallbackTicket = out.FallbackTicket

	return resp
}

// AvailableTokens lists tokens that are deposited and unclaimed
func (h *handler) AvailableTokens(c *gin.Context) {
	ids, err := h.reader.AvailableTokens(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list available tokens")
		return
	}

	c.JSON(http.StatusOK, AvailableTokensResponse{
		AvailableTokens: ids,
		Count:           len(ids),
	})
}

// HasClaimed reports whether an address already claimed
func (h *handler) HasClaimed(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		respondValidationError(c, "invalid Ethereum address")
		return
	}

	claimed, err := h.reader.HasClaimed(c.Request.Context(), common.HexToAddress(address))
	if err != nil {
		respondInternalError(c, err, "Failed to check claim status")
		return
	}

	c.JSON(http.StatusOK, HasClaimedResponse{
		Address:    common.HexToAddress(address).Hex(),
		HasClaimed: claimed,
	})
}

// GetObservation returns the observation recorded for a token
func (h *handler) GetObservation(c *gin.Context) {
	var tokenID domain.TokenID
	if _, err := fmt.Sscanf(c.Param("tokenId"), "%d", &tokenID); err != nil || !tokenID.Valid() {
		respondValidationError(c, "invalid token id")
		return
	}

	obs, ok, err := h.index.Get(c.Request.Context(), tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to load observation")
		return
	}
	if !ok {
		respondNotFound(c, "No observation recorded for this token")
		return
	}

	c.JSON(http.StatusOK, toObservationDTO(obs))
}

// ListObservations returns every recorded observation
func (h *handler) ListObservations(c *gin.Context) {
	all, err := h.index.All(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to load observations")
		return
	}

	dtos := make([]ObservationDTO, 0, len(all))
	for _, obs := range all {
		dtos = append(dtos, toObservationDTO(obs))
	}
	c.JSON(http.StatusOK, ObservationsResponse{
		Observations: dtos,
		Count:        len(dtos),
	})
}

// TxStatus reports delivery progress for a claim handle
func (h *handler) TxStatus(c *gin.Context) {
	handle := c.Param("handle")
	status, ok := h.statuses.Get(handle)
	if !ok {
		respondNotFound(c, "Unknown transaction handle")
		return
	}

	c.JSON(http.StatusOK, status)
}

// ResetTrustGate clears the trust record for an origin (admin)
func (h *handler) ResetTrustGate(c *gin.Context) {
	origin := c.Param("origin")
	if origin == "" {
		respondBadRequest(c, "Origin is required")
		return
	}

	h.gate.Reset(origin)
	logger.InfoCtx(c.Request.Context(), "Trust gate record reset",
		zap.String("origin", origin),
	)
	c.JSON(http.StatusOK, gin.H{"origin": origin, "reset": true})
}

// InvalidateObservations drops the observation cache (admin)
func (h *handler) InvalidateObservations(c *gin.Context) {
	h.index.Invalidate()
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "aperture-drop-api",
	})
}

// Live reports process liveness
func (h *handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Ready reports whether the ledger backend is reachable
func (h *handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if _, err := h.reader.AvailableTokens(ctx); err != nil {
		respondWithError(c, http.StatusServiceUnavailable, errCodeLedgerError, "Ledger backend unreachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Metrics exposes the service counters
func (h *handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
