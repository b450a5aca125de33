// Package policy holds the access predicates gating every operation.
package policy

import (
	"fmt"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

type Action int

const (
	Read Action = iota
	Write
)

// Predicate decides whether p may perform a.
type Predicate func(p domain.Principal, a Action) bool

func IsAuthenticated(p domain.Principal, _ Action) bool {
	return p.Authenticated()
}

func IsManager(p domain.Principal, _ Action) bool {
	return p.Role == domain.RoleManager
}

func IsDeliveryCrew(p domain.Principal, _ Action) bool {
	return p.Role == domain.RoleDeliveryCrew
}

// IsCustomer holds for authenticated users carrying neither group tag.
func IsCustomer(p domain.Principal, _ Action) bool {
	return p.Role == domain.RoleCustomer
}

func IsManagerOrReadOnly(p domain.Principal, a Action) bool {
	return a == Read || IsManager(p, a)
}

// Any is the disjunction of preds.
func Any(preds ...Predicate) Predicate {
	return func(p domain.Principal, a Action) bool {
		for _, pred := range preds {
			if pred(p, a) {
				return true
			}
		}
		return false
	}
}

// Require evaluates preds in order. A failing predicate yields
// ErrUnauthenticated for anonymous callers and ErrPermissionDenied otherwise.
func Require(p domain.Principal, a Action, preds ...Predicate) error {
	for _, pred := range preds {
		if pred(p, a) {
			continue
		}
		if !p.Authenticated() {
			return domain.ErrUnauthenticated
		}
		return fmt.Errorf("%w: %s may not perform this action", domain.ErrPermissionDenied, p.Role)
	}
	return nil
}
