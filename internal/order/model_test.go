// README: State machine table tests (no store involved).
package order

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		kind Kind
		want bool
	}{
		// happy-path forward edges
		{StatusPlaced, KindAccept, true},
		{StatusAccepted, KindArriveAtStore, true},
		{StatusArrivedAtStore, KindConfirmPickup, true},
		{StatusPickedUp, KindDepartForDelivery, true},
		{StatusOutForDelivery, KindArriveAtCustomer, true},
		{StatusArrived, KindConfirmDelivery, true},
		// release from every assigned, non-terminal state
		{StatusAccepted, KindRelease, true},
		{StatusArrivedAtStore, KindRelease, true},
		{StatusPickedUp, KindRelease, true},
		{StatusOutForDelivery, KindRelease, true},
		{StatusArrived, KindRelease, true},
		// cancel from every non-terminal state
		{StatusPlaced, KindCancel, true},
		{StatusAccepted, KindCancel, true},
		{StatusArrived, KindCancel, true},
		// invalid: release before accept, after the order is done
		{StatusPlaced, KindRelease, false},
		{StatusDelivered, KindRelease, false},
		{StatusCancelled, KindRelease, false},
		// invalid: terminal states have no outgoing edges
		{StatusDelivered, KindCancel, false},
		{StatusCancelled, KindCancel, false},
		{StatusDelivered, KindAccept, false},
		// invalid: skipping states
		{StatusPlaced, KindConfirmPickup, false},
		{StatusAccepted, KindConfirmDelivery, false},
		{StatusPickedUp, KindArriveAtCustomer, false},
		// invalid: reversing
		{StatusOutForDelivery, KindConfirmPickup, false},
		{StatusArrived, KindAccept, false},
		// invalid: repeating the edge you just took
		{StatusAccepted, KindAccept, false},
		{StatusPickedUp, KindConfirmPickup, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.kind); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.kind, got, tc.want)
		}
	}
}

func TestTarget(t *testing.T) {
	cases := []struct {
		from Status
		kind Kind
		want Status
	}{
		{StatusPlaced, KindAccept, StatusAccepted},
		{StatusArrived, KindConfirmDelivery, StatusDelivered},
		{StatusPickedUp, KindRelease, StatusPlaced},
		{StatusAccepted, KindCancel, StatusCancelled},
	}
	for _, tc := range cases {
		if got := Target(tc.from, tc.kind); got != tc.want {
			t.Errorf("Target(%s, %s) = %s, want %s", tc.from, tc.kind, got, tc.want)
		}
	}
}

func TestParseStatus_NormalizesButNeverCoerces(t *testing.T) {
	for raw, want := range map[string]Status{
		"placed":              StatusPlaced,
		"  Out_For_Delivery ": StatusOutForDelivery,
		"DELIVERED":           StatusDelivered,
	} {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}

	for _, raw := range []string{"", "en_route", "completed", "placed!"} {
		if _, err := ParseStatus(raw); !errors.Is(err, ErrUnknownStatus) {
			t.Errorf("ParseStatus(%q): expected ErrUnknownStatus, got %v", raw, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Confirm_Pickup "); err != nil || k != KindConfirmPickup {
		t.Errorf("ParseKind(confirm_pickup) = %s, %v", k, err)
	}
	if k, err := ParseKind("release"); err != nil || k != KindRelease {
		t.Errorf("ParseKind(release) = %s, %v", k, err)
	}
	if _, err := ParseKind("teleport"); err == nil {
		t.Error("ParseKind(teleport): expected error")
	}
}

func TestTerminalAndInTransit(t *testing.T) {
	for _, s := range AllStatuses {
		wantTerminal := s == StatusDelivered || s == StatusCancelled
		if s.Terminal() != wantTerminal {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}
		wantTransit := s == StatusPickedUp || s == StatusOutForDelivery
		if s.InTransit() != wantTransit {
			t.Errorf("%s.InTransit() = %v", s, s.InTransit())
		}
	}
}
