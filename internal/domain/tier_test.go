package domain

import "testing"

func TestTierFor(t *testing.T) {
	tests := []struct {
		authorized bool
		admin      bool
		expected   Tier
	}{
		{false, false, TierPublic},
		{true, false, TierAuthorized},
		{true, true, TierAdmin},
		{false, true, TierAdmin},
	}

	for _, tt := range tests {
		if got := TierFor(tt.authorized, tt.admin); got != tt.expected {
			t.Fatalf("TierFor(%v, %v) = %s, want %s", tt.authorized, tt.admin, got, tt.expected)
		}
	}
}

func TestTierAllows(t *testing.T) {
	tests := []struct {
		held     Tier
		required Tier
		expected bool
	}{
		{TierPublic, TierPublic, true},
		{TierPublic, TierAuthorized, false},
		{TierAuthorized, TierAuthorized, true},
		{TierAuthorized, TierAdmin, false},
		{TierAdmin, TierAuthorized, true},
		{TierAdmin, TierAdmin, true},
	}

	for _, tt := range tests {
		if got := tt.held.Allows(tt.required); got != tt.expected {
			t.Fatalf("%s.Allows(%s) = %v, want %v", tt.held, tt.required, got, tt.expected)
		}
	}
}

func TestTierString(t *testing.T) {
	if TierAdmin.String() != "admin" || TierPublic.String() != "public" || Tier(9).String() != "unknown" {
		t.Fatalf("unexpected tier names: %s %s %s", TierAdmin, TierPublic, Tier(9))
	}
}
