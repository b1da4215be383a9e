package domain

import "time"

const (
	EventOrderCreated  = "order.created"
	EventStatusChanged = "order.status_changed"
)

// Event is what staff terminals receive on the live channel and what travels
// through the broker between services. BranchID doubles as the routing scope:
// a subscriber of one branch must never see another branch's events.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	BranchID   int64       `json:"branch_id"`
	Order      Order       `json:"order"`
	OldStatus  OrderStatus `json:"old_status,omitempty"`
	NewStatus  OrderStatus `json:"new_status,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
