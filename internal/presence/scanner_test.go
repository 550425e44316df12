package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/presence/presencetest"
)

func newScanner(t *testing.T, radio presence.Radio, perms presence.Permissions) *presence.Scanner {
	t.Helper()
	r := presence.NewRoster(nil, discardLogger())
	t.Cleanup(r.Close)
	return presence.NewScanner(radio, perms, modern, r, discardLogger(), presence.WithSweepEvery(10*time.Millisecond))
}

func TestScannerFeedsRoster(t *testing.T) {
	radio := presencetest.NewFakeRadio()
	s := newScanner(t, radio, presence.NewStaticPermissions(modern...))

	st := s.Start(context.Background())
	defer s.Stop()
	if st.State != presence.StateScanning {
		t.Fatalf("expected scanning, got %s", st)
	}

	now := time.Now()
	radio.EmitIdentifier("11", -48, now)
	radio.EmitIdentifier("22", -75, now)
	radio.EmitIdentifier("11", -52, now.Add(time.Second))

	snap := s.Roster().Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(snap))
	}
	if snap[0].Identifier != "11" || snap[0].SignalStrength != -52 {
		t.Fatalf("unexpected first candidate %+v", snap[0])
	}
}

func TestScannerIgnoresUnrelatedAdvertisements(t *testing.T) {
	radio := presencetest.NewFakeRadio()
	s := newScanner(t, radio, presence.NewStaticPermissions(modern...))
	s.Start(context.Background())
	defer s.Stop()

	radio.Emit(presence.Sighting{CompanyID: 0x004C, Data: []byte("PX12"), RSSI: -40})
	radio.Emit(presence.Sighting{CompanyID: presence.CompanyID, Data: []byte("garbage"), RSSI: -40})

	if n := s.Roster().Len(); n != 0 {
		t.Fatalf("expected empty roster, got %d", n)
	}
}

func TestScannerStopKeepsRoster(t *testing.T) {
	radio := presencetest.NewFakeRadio()
	s := newScanner(t, radio, presence.NewStaticPermissions(modern...))
	s.Start(context.Background())

	radio.EmitIdentifier("3", -60, time.Now())
	if st := s.Stop(); st.State != presence.StateStopped {
		t.Fatalf("expected stopped, got %s", st)
	}
	if radio.Scanning() {
		t.Fatal("radio still scanning")
	}
	if s.Roster().Len() != 1 {
		t.Fatal("stop cleared the roster")
	}
	if radio.EmitIdentifier("4", -60, time.Now()) {
		t.Fatal("sighting delivered after stop")
	}
}

func TestScannerStopsWhenOwnerCloses(t *testing.T) {
	radio := presencetest.NewFakeRadio()
	s := newScanner(t, radio, presence.NewStaticPermissions(modern...))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	waitFor(t, "scan stop", func() bool {
		return !radio.Scanning() && s.Status().State == presence.StateStopped
	})
}

func TestScannerEvictsWhileRunning(t *testing.T) {
	radio := presencetest.NewFakeRadio()
	s := newScanner(t, radio, presence.NewStaticPermissions(modern...))
	s.Start(context.Background())
	defer s.Stop()

	radio.EmitIdentifier("9", -60, time.Now().Add(-time.Minute))
	waitFor(t, "eviction", func() bool { return s.Roster().Len() == 0 })
}

func TestScannerPreconditionsAndFailures(t *testing.T) {
	t.Run("missing permission", func(t *testing.T) {
		radio := presencetest.NewFakeRadio()
		s := newScanner(t, radio, presence.NewStaticPermissions())
		st := s.Start(context.Background())
		if st.Reason != presence.ReasonMissingPermission {
			t.Fatalf("got %s", st)
		}
		if _, _, startScan, _ := radio.Calls(); startScan != 0 {
			t.Fatal("platform called without permission")
		}
	})

	t.Run("radio disabled", func(t *testing.T) {
		radio := presencetest.NewFakeRadio()
		radio.SetEnabled(false)
		s := newScanner(t, radio, presence.NewStaticPermissions(modern...))
		if st := s.Start(context.Background()); st.Reason != presence.ReasonRadioDisabled {
			t.Fatalf("got %s", st)
		}
	})

	codes := []struct {
		code presence.ScanFailure
		want presence.Reason
	}{
		{presence.ScanAlreadyStarted, presence.ReasonAlreadyStarted},
		{presence.ScanRegistrationFailed, presence.ReasonRegistrationFailed},
		{presence.ScanUnsupported, presence.ReasonUnsupported},
		{presence.ScanInternalError, presence.ReasonInternal},
		{presence.ScanOutOfHardwareResources, presence.ReasonHardwareUnavailable},
	}
	for _, tt := range codes {
		t.Run(tt.code.String(), func(t *testing.T) {
			radio := presencetest.NewFakeRadio()
			radio.FailScan(tt.code)
			s := newScanner(t, radio, presence.NewStaticPermissions(modern...))
			st := s.Start(context.Background())
			if st.State != presence.StateError || st.Reason != tt.want {
				t.Fatalf("expected error(%s), got %s", tt.want, st)
			}
		})
	}
}

func TestLegacyPermissionSet(t *testing.T) {
	legacy := presence.RequiredPermissions(28)
	if len(legacy) != 4 {
		t.Fatalf("expected 4 legacy permissions, got %v", legacy)
	}
	perms := presence.NewStaticPermissions(presence.ParsePermissions("all")...)
	if !perms.Check(legacy) || !perms.Check(modern) {
		t.Fatal("\"all\" should grant both sets")
	}
}
