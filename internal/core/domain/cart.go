package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxQuantity keeps quantity × MaxPrice inside a decimal(10,2) line price.
const MaxQuantity = 10000

// MaxLineTotal is the largest line or order total a decimal(10,2) column can
// hold.
var MaxLineTotal = decimal.RequireFromString("99999999.99")

// CartLine is one menu item in a user's pending basket. Prices are frozen
// when the line is created.
type CartLine struct {
	ID         int64
	UserID     int64
	MenuItemID int64
	Quantity   int
	UnitPrice  decimal.Decimal
	Price      decimal.Decimal
}

// NewCartLine prices a line from the catalog price of item at this moment.
func NewCartLine(userID int64, item MenuItem, quantity int) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	}
	if quantity > MaxQuantity {
		return CartLine{}, fmt.Errorf("%w: quantity may not exceed %d", ErrValidation, MaxQuantity)
	}
	return CartLine{
		UserID:     userID,
		MenuItemID: item.ID,
		Quantity:   quantity,
		UnitPrice:  item.Price,
		Price:      item.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

// CartTotal sums the line prices.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price)
	}
	return total
}
