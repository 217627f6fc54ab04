package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dispute reasons.
type DisputeReason string

const (
	ReasonNotCompleted          DisputeReason = "not_completed"
	ReasonNoShow                DisputeReason = "no_show"
	ReasonPoorQuality           DisputeReason = "poor_quality"
	ReasonSafety                DisputeReason = "safety"
	ReasonFraud                 DisputeReason = "fraud"
	ReasonUnauthorizedRecording DisputeReason = "unauthorized_recording"
	ReasonOther                 DisputeReason = "other"
)

// ValidDisputeReason reports whether r is one of the enumerated reasons.
func ValidDisputeReason(r DisputeReason) bool {
	switch r {
	case ReasonNotCompleted, ReasonNoShow, ReasonPoorQuality, ReasonSafety,
		ReasonFraud, ReasonUnauthorizedRecording, ReasonOther:
		return true
	}
	return false
}

// Dispute statuses.
type DisputeStatus string

const (
	DisputeOpen          DisputeStatus = "open"
	DisputeAdminReviewed DisputeStatus = "admin_reviewed"
	DisputeResolved      DisputeStatus = "resolved"
)

// Admin decisions on a dispute.
type DisputeDecision string

const (
	DecisionRefundRequester DisputeDecision = "refund_requester"
	DecisionReleaseProvider DisputeDecision = "release_provider"
	DecisionSplit           DisputeDecision = "split"
)

// Dispute is an unresolved claim against an escrow. Mutated only by an
// admin decision; once resolved the referenced escrow is finalized in the
// same operation.
type Dispute struct {
	ID              uuid.UUID        `json:"id"`
	EscrowID        uuid.UUID        `json:"escrow_id"`
	RaisedBy        uuid.UUID        `json:"raised_by"`
	Reason          DisputeReason    `json:"reason"`
	Details         string           `json:"details"`
	Evidence        []uuid.UUID      `json:"evidence,omitempty"`
	Status          DisputeStatus    `json:"status"`
	AdminDecision   *DisputeDecision `json:"admin_decision,omitempty"`
	DecisionPayload json.RawMessage  `json:"decision_payload,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
}
