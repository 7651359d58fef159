package engine

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

func TestDedupeKeepsMostRecentlyActiveOwner(t *testing.T) {
	t.Parallel()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 4, 18, 0, 0, 0, time.UTC)

	out := Dedupe([]Recipient{
		{Token: "tok-a", OwnerUserID: "u1", LastOpenedAppAt: tp(t1)},
		{Token: "tok-a", OwnerUserID: "u2", LastOpenedAppAt: tp(t2)},
	})
	if len(out) != 1 {
		t.Fatalf("got %d recipients, want 1", len(out))
	}
	if out[0].OwnerUserID != "u2" {
		t.Fatalf("owner = %s, want u2 (later activity)", out[0].OwnerUserID)
	}
}

func TestDedupeMissingTimestampNeverOverrides(t *testing.T) {
	t.Parallel()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	out := Dedupe([]Recipient{
		{Token: "tok-a", OwnerUserID: "u1", LastOpenedAppAt: tp(t1)},
		{Token: "tok-a", OwnerUserID: "u2"},
	})
	if out[0].OwnerUserID != "u1" {
		t.Fatalf("owner = %s, want u1", out[0].OwnerUserID)
	}
}

func TestDedupeFirstSeenWinsOnTie(t *testing.T) {
	t.Parallel()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	out := Dedupe([]Recipient{
		{Token: "tok-a", OwnerUserID: "u1", LastOpenedAppAt: tp(t1)},
		{Token: "tok-a", OwnerUserID: "u2", LastOpenedAppAt: tp(t1)},
	})
	if out[0].OwnerUserID != "u1" {
		t.Fatalf("owner = %s, want first-seen u1", out[0].OwnerUserID)
	}

	out = Dedupe([]Recipient{
		{Token: "tok-b", OwnerUserID: "u3"},
		{Token: "tok-b", OwnerUserID: "u4"},
	})
	if out[0].OwnerUserID != "u3" {
		t.Fatalf("owner = %s, want first-seen u3 when both missing", out[0].OwnerUserID)
	}
}

func TestDedupePreservesFirstSeenTokenOrder(t *testing.T) {
	t.Parallel()
	out := Dedupe([]Recipient{
		{Token: "c", OwnerUserID: "u1"},
		{Token: "a", OwnerUserID: "u1"},
		{Token: "c", OwnerUserID: "u2"},
		{Token: "b", OwnerUserID: "u1"},
	})
	got := make([]string, len(out))
	for i, r := range out {
		got[i] = r.Token
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
