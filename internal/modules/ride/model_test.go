package ride

import (
	"testing"

	"dispatch/internal/types"
)

var allStatuses = []Status{StatusPending, StatusAssigned, StatusCancelled, StatusStarted, StatusCompleted}

func TestCanTransition(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusPending, StatusAssigned}:  true,
		{StatusPending, StatusCancelled}: true,
		{StatusAssigned, StatusStarted}:  true,
		{StatusStarted, StatusCompleted}: true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, st := range []Status{StatusCancelled, StatusCompleted} {
		for _, to := range allStatuses {
			if CanTransition(st, to) {
				t.Fatalf("terminal status %s allows transition to %s", st, to)
			}
		}
	}
}

func TestStatusHasDriver(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:   false,
		StatusAssigned:  true,
		StatusCancelled: false,
		StatusStarted:   true,
		StatusCompleted: true,
	}
	for st, want := range cases {
		if got := st.HasDriver(); got != want {
			t.Fatalf("%s.HasDriver() = %v, want %v", st, got, want)
		}
	}
}

func TestCloneDoesNotShareFields(t *testing.T) {
	d := "d1"
	r := &Ride{ID: "r1", Status: StatusAssigned}
	id := types.ID(d)
	r.DriverID = &id
	c := r.Clone()
	*c.DriverID = "d2"
	if *r.DriverID != "d1" {
		t.Fatalf("clone shares driver id pointer")
	}
}
