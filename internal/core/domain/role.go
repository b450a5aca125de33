package domain

import "context"

// Group names as stored in the groups table.
const (
	GroupManager      = "Manager"
	GroupDeliveryCrew = "Delivery crew"
)

// Groups lists every role group the system bootstraps at startup.
var Groups = []string{GroupManager, GroupDeliveryCrew}

type Role int

const (
	RoleAnonymous Role = iota
	RoleCustomer
	RoleDeliveryCrew
	RoleManager
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleDeliveryCrew:
		return "delivery_crew"
	case RoleManager:
		return "manager"
	default:
		return "anonymous"
	}
}

// RoleFromGroups derives the role of an authenticated user from its group
// tags. Manager wins when a user carries both tags.
func RoleFromGroups(groups []string) Role {
	var crew bool
	for _, g := range groups {
		switch g {
		case GroupManager:
			return RoleManager
		case GroupDeliveryCrew:
			crew = true
		}
	}
	if crew {
		return RoleDeliveryCrew
	}
	return RoleCustomer
}

// ValidGroup reports whether name is one of the role groups.
func ValidGroup(name string) bool {
	return name == GroupManager || name == GroupDeliveryCrew
}

// Principal is the caller of an operation, resolved once per request.
type Principal struct {
	UserID   int64
	Username string
	Role     Role
}

// Anonymous is the principal of a request without credentials.
var Anonymous = Principal{Role: RoleAnonymous}

func (p Principal) Authenticated() bool {
	return p.Role != RoleAnonymous
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}
