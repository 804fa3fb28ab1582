package order

// pending is the only state with outgoing transitions; completed and failed
// are terminal.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

func IsTerminal(s OrderStatus) bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

func IsValidStatus(s OrderStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}
