package domain

import "time"

// Event is a lab lifecycle event (launch, teardown, close, sweep). Events are
// org-scoped; user and purchase identifiers are set when known.
type Event struct {
	OrgID      string            `json:"orgId,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	PurchaseID string            `json:"purchaseId,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	EventType  string            `json:"eventType"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
