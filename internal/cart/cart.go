// Package cart holds the items a requester is about to charge for.
package cart

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrNotInCart       = errors.New("item not in cart")
)

// Line is one product in the cart.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is shared by the screens that build a charge. Create one per
// requester session and pass it to whatever needs it.
type Cart struct {
	mu    sync.RWMutex
	lines map[string]*Line
	order []string
}

func New() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

// Add puts qty units of a product in the cart, merging with an existing line.
func (c *Cart) Add(productID, name string, unitPrice decimal.Decimal, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[productID]; ok {
		l.Quantity += qty
		l.UnitPrice = unitPrice
		if name != "" {
			l.Name = name
		}
		return nil
	}
	c.lines[productID] = &Line{ProductID: productID, Name: name, UnitPrice: unitPrice, Quantity: qty}
	c.order = append(c.order, productID)
	return nil
}

// SetQuantity overwrites a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return c.Remove(productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[productID]
	if !ok {
		return ErrNotInCart
	}
	l.Quantity = qty
	return nil
}

func (c *Cart) Remove(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lines[productID]; !ok {
		return ErrNotInCart
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]*Line)
	c.order = nil
}

// Lines returns the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// Total sums every line, rounded to cents.
func (c *Cart) Total() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

// Quantities maps product id to quantity.
func (c *Cart) Quantities() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.lines))
	for id, l := range c.lines {
		out[id] = l.Quantity
	}
	return out
}
