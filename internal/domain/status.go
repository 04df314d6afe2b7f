package domain

// transitions is the full transaction state machine. COMPLETED and
// CANCELLED have no outgoing edges.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:   {TransactionAccepted, TransactionCancelled},
	TransactionAccepted:  {TransactionInTransit, TransactionCancelled},
	TransactionInTransit: {TransactionCompleted, TransactionCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change, returning the new
// status. It is pure: callers own persisting the result.
func Transition(from, to TransactionStatus) (TransactionStatus, error) {
	if !CanTransition(from, to) {
		return from, &ErrInvalidTransition{Current: from, Attempted: to}
	}
	return to, nil
}

// ProductStatusFor maps a transaction status change onto the linked
// product. Accepting reserves the listing, cancelling from PENDING frees it
// again, completion retires it.
func ProductStatusFor(ts TransactionStatus) (ProductStatus, bool) {
	switch ts {
	case TransactionAccepted:
		return ProductReserved, true
	case TransactionCancelled:
		return ProductAvailable, true
	case TransactionInTransit:
		return ProductInProgress, true
	case TransactionCompleted:
		return ProductCompleted, true
	}
	return "", false
}
