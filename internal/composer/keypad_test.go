package composer_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/proxipay/internal/composer"
)

func press(k *composer.Keypad, keys ...composer.Key) string {
	for _, key := range keys {
		k.Press(key)
	}
	return k.Buffer()
}

func TestKeypadSequences(t *testing.T) {
	tests := []struct {
		name    string
		keys    []composer.Key
		buffer  string
		display string
	}{
		{"initial", nil, "0.00", "0.00"},
		{"first digit replaces", []composer.Key{"5"}, "5", "5.00"},
		{"five twenty five", []composer.Key{"5", ".", "2", "5"}, "5.25", "5.25"},
		{"second decimal ignored", []composer.Key{"5", ".", "2", ".", "5"}, "5.25", "5.25"},
		{"third decimal digit ignored", []composer.Key{"1", ".", "9", "9", "9"}, "1.99", "1.99"},
		{"trailing point", []composer.Key{"1", "2", "."}, "12.", "12.00"},
		{"leading zero replaced", []composer.Key{"0", "7"}, "7", "7.00"},
		{"zero point five", []composer.Key{"0", ".", "5"}, "0.5", "0.50"},
		{"typed zero amount keeps decimals", []composer.Key{"0", ".", "0", "0", "5"}, "0.00", "0.00"},
		{"digit after clear replaces", []composer.Key{"8", composer.KeyClear, "3"}, "3", "3.00"},
		{"backspace", []composer.Key{"4", "2", composer.KeyBackspace}, "4", "4.00"},
		{"backspace to empty", []composer.Key{"4", composer.KeyBackspace}, "0.00", "0.00"},
		{"clear", []composer.Key{"9", ".", "1", composer.KeyClear}, "0.00", "0.00"},
		{"unknown key", []composer.Key{"x", "3"}, "3", "3.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := composer.NewKeypad()
			if got := press(k, tt.keys...); got != tt.buffer {
				t.Fatalf("buffer = %q, want %q", got, tt.buffer)
			}
			if got := k.Display(); got != tt.display {
				t.Fatalf("display = %q, want %q", got, tt.display)
			}
		})
	}
}

func TestKeypadClearFromAnyState(t *testing.T) {
	for _, seq := range [][]composer.Key{
		{"1"}, {"1", "."}, {"1", ".", "2", "3"}, {composer.KeyBackspace}, {"9", "9", "9", "9", "9"},
	} {
		k := composer.NewKeypad()
		press(k, seq...)
		k.Clear()
		if k.Buffer() != composer.EmptyBuffer {
			t.Fatalf("clear after %v left %q", seq, k.Buffer())
		}
	}
}

func TestKeypadSet(t *testing.T) {
	k := composer.NewKeypad()
	k.Set(decimal.RequireFromString("12.5"))
	if k.Buffer() != "12.50" || !k.Valid() {
		t.Fatalf("buffer = %q", k.Buffer())
	}
	k.Set(decimal.Zero)
	if k.Buffer() != composer.EmptyBuffer {
		t.Fatalf("buffer = %q", k.Buffer())
	}
}

func TestIsValidAmount(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0.00", false},
		{"0.01", true},
		{"9999.99", true},
		{"10000.00", false},
		{"5", true},
		{"5.", true},
		{"1.005", false},
		{"-1.00", false},
		{"", false},
		{"abc", false},
	}
	for _, tt := range tests {
		if got := composer.IsValidAmount(tt.in); got != tt.want {
			t.Errorf("IsValidAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
