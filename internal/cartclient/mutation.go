package cartclient

import "github.com/fjod/go_tickets/internal/domain"

type mutationKind string

const (
	mutationAdd    mutationKind = "add"
	mutationRemove mutationKind = "remove"
	mutationUpdate mutationKind = "update"
	mutationClear  mutationKind = "clear"
)

type failurePolicy int

const (
	// revertDelta undoes only this mutation's count change, leaving
	// whatever concurrent mutations did in place.
	revertDelta failurePolicy = iota
	restoreSnapshot
	refetchOnFailure
)

type mutationPolicy struct {
	reloadOnSuccess bool
	settleSignal    bool
	onFailure       failurePolicy
}

var mutationPolicies = map[mutationKind]mutationPolicy{
	mutationAdd:    {reloadOnSuccess: true, settleSignal: true, onFailure: revertDelta},
	mutationRemove: {reloadOnSuccess: true, onFailure: restoreSnapshot},
	mutationUpdate: {reloadOnSuccess: true, onFailure: refetchOnFailure},
	mutationClear:  {reloadOnSuccess: false, onFailure: refetchOnFailure},
}

// cartState is what a Store renders.
type cartState struct {
	items []domain.CartLine
	count int
}

func (s cartState) clone() cartState {
	s.items = append([]domain.CartLine(nil), s.items...)
	return s
}

// mutation is one cart change: its optimistic edit of local state, the
// request that makes it real, and the messages shown either way.
type mutation struct {
	kind        mutationKind
	apply       func(st *cartState) (countDelta int)
	send        func() error
	successText string
	failureText string
}

func removeLine(st *cartState, itemID string) (domain.CartLine, bool) {
	for i, l := range st.items {
		if l.ID == itemID {
			st.items = append(st.items[:i:i], st.items[i+1:]...)
			return l, true
		}
	}
	return domain.CartLine{}, false
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
