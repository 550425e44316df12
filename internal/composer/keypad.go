// Package composer builds and submits payment requests to a nearby payer.
package composer

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EmptyBuffer = "0.00"

	maxDecimals = 2
)

var (
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("9999.99")
)

// Key is one keypad button.
type Key string

const (
	KeyDecimal   Key = "."
	KeyBackspace Key = "back"
	KeyClear     Key = "clear"
)

// Keypad is the amount entry buffer. The zero value is not ready; use NewKeypad.
type Keypad struct {
	buf string
	// fresh is set while buf holds the untouched EmptyBuffer placeholder.
	fresh bool
}

func NewKeypad() *Keypad {
	return &Keypad{buf: EmptyBuffer, fresh: true}
}

// Buffer returns the raw text typed so far.
func (k *Keypad) Buffer() string {
	return k.buf
}

// Press applies one key and returns the new buffer. Unknown keys are ignored.
func (k *Keypad) Press(key Key) string {
	switch key {
	case KeyDecimal:
		k.Decimal()
	case KeyBackspace:
		k.Backspace()
	case KeyClear:
		k.Clear()
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			k.Digit(key[0])
		}
	}
	return k.buf
}

// Digit appends d. The first digit on a fresh buffer replaces it.
func (k *Keypad) Digit(d byte) {
	if d < '0' || d > '9' {
		return
	}
	if k.fresh || k.buf == "0" {
		k.buf = string(d)
		k.fresh = false
		return
	}
	if i := strings.IndexByte(k.buf, '.'); i >= 0 && len(k.buf)-i-1 >= maxDecimals {
		return
	}
	k.buf += string(d)
}

// Decimal appends a decimal point unless there already is one.
func (k *Keypad) Decimal() {
	if strings.Contains(k.buf, ".") {
		return
	}
	k.buf += "."
}

func (k *Keypad) Backspace() {
	if len(k.buf) > 0 {
		k.buf = k.buf[:len(k.buf)-1]
	}
	if k.buf == "" {
		k.Clear()
	}
}

func (k *Keypad) Clear() {
	k.buf = EmptyBuffer
	k.fresh = true
}

// Set replaces the buffer with amount formatted to two decimals.
func (k *Keypad) Set(amount decimal.Decimal) {
	if amount.IsZero() || amount.IsNegative() {
		k.Clear()
		return
	}
	k.buf = amount.StringFixed(maxDecimals)
	k.fresh = false
}

// Display renders the buffer with exactly two decimals.
func (k *Keypad) Display() string {
	v, err := parseBuffer(k.buf)
	if err != nil {
		return EmptyBuffer
	}
	return v.StringFixed(maxDecimals)
}

// Amount parses the buffer.
func (k *Keypad) Amount() (decimal.Decimal, error) {
	return parseBuffer(k.buf)
}

// Valid reports whether the buffer holds a submittable amount.
func (k *Keypad) Valid() bool {
	return IsValidAmount(k.buf)
}

func parseBuffer(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSuffix(s, "."))
}

// IsValidAmount reports whether s parses to a value in [0.01, 9999.99]
// with at most two decimals.
func IsValidAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// ParseAmount parses and validates s.
func ParseAmount(s string) (decimal.Decimal, error) {
	v, err := parseBuffer(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !v.Equal(v.Round(maxDecimals)) {
		return decimal.Zero, ErrInvalidAmount
	}
	if v.LessThan(MinAmount) || v.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return v, nil
}
