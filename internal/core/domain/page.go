package domain

import "math"

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page is a 1-based page window used by list operations.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Limit() int {
	return p.Normalize().Size
}

// Offset saturates at math.MaxInt, so a page past any real data is simply
// empty.
func (p Page) Offset() int {
	n := p.Normalize()
	if n.Number-1 > math.MaxInt/n.Size {
		return math.MaxInt
	}
	return (n.Number - 1) * n.Size
}
