package domain

type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusInPreparation OrderStatus = "in_preparation"
	StatusReady         OrderStatus = "ready"
	StatusDelivered     OrderStatus = "delivered"
	StatusCancelled     OrderStatus = "cancelled"
)

// transitions is the whole lifecycle: pending -> in_preparation -> ready ->
// delivered, with cancellation possible while the kitchen hasn't finished.
// delivered and cancelled are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:       {StatusInPreparation, StatusCancelled},
	StatusInPreparation: {StatusReady, StatusCancelled},
	StatusReady:         {StatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInPreparation, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Actor is the verified principal behind a status-transition request. The
// authentication layer (external to this service) is responsible for filling
// it from the session token.
type Actor struct {
	BusinessID int64
	Role       Role
	BranchID   int64 // set only for branch-level staff
}

// CanManageOrder reports whether the actor may transition orders of the given
// branch. Owners reach every branch of their business; staff only their own.
// The order id itself is guessable, so scope is checked on every request.
// CanEditCatalog: catalog management is owner-only; branch staff fulfill
// orders but don't edit the menu.
func (a Actor) CanEditCatalog(branchBusinessID int64) bool {
	return a.Role == RoleOwner && a.BusinessID == branchBusinessID
}

func (a Actor) CanManageOrder(orderBranchID, branchBusinessID int64) bool {
	switch a.Role {
	case RoleOwner:
		return a.BusinessID == branchBusinessID
	case RoleStaff:
		return a.BranchID == orderBranchID
	}
	return false
}
