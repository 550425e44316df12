package presence_test

import (
	"testing"

	"github.com/suspectuso/proxipay/internal/presence"
)

func TestProximityOf(t *testing.T) {
	tests := []struct {
		rssi int
		want string
	}{
		{-30, "very close"},
		{-50, "very close"},
		{-51, "close"},
		{-60, "close"},
		{-61, "nearby"},
		{-70, "nearby"},
		{-71, "far"},
		{-80, "far"},
		{-81, "very far"},
		{-120, "very far"},
	}
	for _, tt := range tests {
		if got := presence.ProximityOf(tt.rssi).String(); got != tt.want {
			t.Errorf("ProximityOf(%d) = %q, want %q", tt.rssi, got, tt.want)
		}
	}
}
