package presence_test

import (
	"strings"
	"testing"

	"github.com/suspectuso/proxipay/internal/presence"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ids := []string{"1", "42", "1234567890", "18446744073709551615", "00000000000000000001"}
	for _, id := range ids {
		enc := presence.EncodeIdentifier(id)
		if got := presence.DecodeIdentifier(enc); got != id {
			t.Fatalf("round trip %q: got %q", id, got)
		}
	}
}

func TestEncodeTruncatesTo20Bytes(t *testing.T) {
	long := strings.Repeat("9", 35)
	enc := presence.EncodeIdentifier(long)
	if len(enc) != presence.MaxIdentifierBytes {
		t.Fatalf("expected %d bytes, got %d", presence.MaxIdentifierBytes, len(enc))
	}
	if string(enc) != long[:20] {
		t.Fatalf("expected prefix %q, got %q", long[:20], enc)
	}
	// Deterministic.
	if string(presence.EncodeIdentifier(long)) != string(enc) {
		t.Fatal("truncation is not deterministic")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	p := presence.BuildPayload("9001")
	if p.CompanyID != presence.CompanyID {
		t.Fatalf("unexpected company id %#x", p.CompanyID)
	}
	id, ok := presence.ParsePayload(p.CompanyID, p.Data)
	if !ok || id != "9001" {
		t.Fatalf("expected 9001, got %q ok=%v", id, ok)
	}
}

func TestParsePayloadRejectsForeignData(t *testing.T) {
	good := presence.BuildPayload("77")

	tests := []struct {
		name      string
		companyID uint16
		data      []byte
	}{
		{"foreign company", 0x004C, good.Data},
		{"missing tag", presence.CompanyID, []byte("77")},
		{"empty identifier", presence.CompanyID, good.Data[:2]},
		{"nil data", presence.CompanyID, nil},
		{"oversized identifier", presence.CompanyID, append(append([]byte{}, good.Data[:2]...), []byte(strings.Repeat("1", 21))...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if id, ok := presence.ParsePayload(tt.companyID, tt.data); ok {
				t.Fatalf("expected rejection, got %q", id)
			}
		})
	}
}
