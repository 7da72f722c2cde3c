package rest

import (
	"time"

	"github.com/halide-works/aperture-drop/internal/domain"
)

// SubmitObservationRequest is the claim submission payload.
type SubmitObservationRequest struct {
	Address string `json:"address" binding:"required"`
	TokenID uint16 `json:"tokenId" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

// ClaimResultDTO carries delivery progress for an accepted claim.
type ClaimResultDTO struct {
	TxHandle     string `json:"txHandle"`
	TxHash       string `json:"txHash,omitempty"`
	EtherscanURL string `json:"etherscanUrl,omitempty"`
}

// SubmitObservationResponse is the terminal verdict on a claim attempt.
type SubmitObservationResponse struct {
	Approved     bool   `json:"approved"`
	SoftReject   bool   `json:"softReject"`
	Score        int    `json:"score"`
	Reason       string `json:"reason,omitempty"`
	FollowUp     string `json:"followUp,omitempty"`
	Message      string `json:"message"`
	Claimed      bool   `json:"claimed"`
	Broadcasting bool   `json:"broadcasting"`

	ClaimResult    *ClaimResultDTO     `json:"claimResult,omitempty"`
	FallbackTicket *domain.ClaimTicket `json:"fallbackTicket,omitempty"`
}

// AvailableTokensResponse lists the tokens still claimable.
type AvailableTokensResponse struct {
	AvailableTokens []domain.TokenID `json:"availableTokens"`
	Count           int              `json:"count"`
}

// HasClaimedResponse reports the one-way claim latch for an address.
type HasClaimedResponse struct {
	Address    string `json:"address"`
	HasClaimed bool   `json:"hasClaimed"`
}

// ObservationDTO is one recorded observation.
type ObservationDTO struct {
	TokenID   domain.TokenID `json:"tokenId"`
	Text      string         `json:"text"`
	Author    string         `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
}

// ObservationsResponse lists all recorded observations.
type ObservationsResponse struct {
	Observations []ObservationDTO `json:"observations"`
	Count        int              `json:"count"`
}

func toObservationDTO(obs domain.Observation) ObservationDTO {
	return ObservationDTO{
		TokenID:   obs.TokenID,
		Text:      obs.Text,
		Author:    obs.Author.Hex(),
		Timestamp: obs.Timestamp,
	}
}
