package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxTitleLength = 255

// MaxPrice is the largest price a decimal(6,2) column can hold.
var MaxPrice = decimal.RequireFromString("9999.99")

type MenuItem struct {
	ID        int64
	Title     string
	Price     decimal.Decimal
	Inventory int
}

// Validate checks the fields a Manager may write.
func (m MenuItem) Validate() error {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return fmt.Errorf("%w: title may not be blank", ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("%w: title is longer than %d characters", ErrValidation, maxTitleLength)
	}
	if err := ValidatePrice(m.Price); err != nil {
		return err
	}
	if m.Inventory < 0 {
		return fmt.Errorf("%w: inventory must be zero or greater", ErrValidation)
	}
	return nil
}

func ValidatePrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%w: price must be zero or greater", ErrValidation)
	}
	if !p.Equal(p.Round(2)) {
		return fmt.Errorf("%w: price has more than 2 decimal places", ErrValidation)
	}
	if p.GreaterThan(MaxPrice) {
		return fmt.Errorf("%w: price exceeds %s", ErrValidation, MaxPrice.StringFixed(2))
	}
	return nil
}

// MenuItemPatch carries a partial update; nil fields are left untouched.
type MenuItemPatch struct {
	Title     *string
	Price     *decimal.Decimal
	Inventory *int
}

func (p MenuItemPatch) Apply(m MenuItem) MenuItem {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Price != nil {
		m.Price = *p.Price
	}
	if p.Inventory != nil {
		m.Inventory = *p.Inventory
	}
	return m
}

type MenuOrdering string

const (
	MenuOrderByID        MenuOrdering = ""
	MenuOrderByTitle     MenuOrdering = "title"
	MenuOrderByTitleDesc MenuOrdering = "-title"
	MenuOrderByPrice     MenuOrdering = "price"
	MenuOrderByPriceDesc MenuOrdering = "-price"
)

// ParseMenuOrdering accepts the ordering query values; unknown fields fall
// back to id ordering.
func ParseMenuOrdering(s string) MenuOrdering {
	switch o := MenuOrdering(strings.TrimSpace(s)); o {
	case MenuOrderByTitle, MenuOrderByTitleDesc, MenuOrderByPrice, MenuOrderByPriceDesc:
		return o
	default:
		return MenuOrderByID
	}
}

type MenuQuery struct {
	Search   string
	Ordering MenuOrdering
	Page     Page
}
