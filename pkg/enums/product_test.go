package enums

import "testing"

func TestProductStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ProductStatus
		allowed  bool
	}{
		{ProductStatusSubmitted, ProductStatusUnderReview, true},
		{ProductStatusSubmitted, ProductStatusScored, true},
		{ProductStatusSubmitted, ProductStatusCertified, false},
		{ProductStatusUnderReview, ProductStatusScored, true},
		{ProductStatusUnderReview, ProductStatusSubmitted, false},
		{ProductStatusScored, ProductStatusCertified, true},
		{ProductStatusScored, ProductStatusScored, true},
		{ProductStatusCertified, ProductStatusScored, true},
		{ProductStatusCertified, ProductStatusSubmitted, false},
		{ProductStatusCertified, ProductStatusCertified, false},
		{ProductStatusRejected, ProductStatusCertified, false},
		{ProductStatusRejected, ProductStatusSubmitted, true},
		{ProductStatus("bogus"), ProductStatusScored, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestParseProductStatus(t *testing.T) {
	if s, err := ParseProductStatus("under_review"); err != nil || s != ProductStatusUnderReview {
		t.Fatalf("unexpected parse result %q %v", s, err)
	}
	if _, err := ParseProductStatus("approved"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestAwardTierParsing(t *testing.T) {
	tier, err := ParseAwardTier("grand_gold")
	if err != nil || tier.DisplayName() != "Grand Gold" {
		t.Fatalf("unexpected tier %q %v", tier, err)
	}
	if AwardTier("platinum").IsValid() {
		t.Fatal("platinum is not a tier")
	}
}

func TestParseHelpersShareErrorShape(t *testing.T) {
	if _, err := ParseUserRole("judge"); err == nil || err.Error() != `invalid user role "judge"` {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := ParseOutboxEventType(""); err == nil {
		t.Fatal("empty event type must not parse")
	}
	if got, err := ParseNotificationType("system"); err != nil || got != NotificationTypeSystem {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() || OutboxDLQErrorReason("timeout").IsValid() {
		t.Fatal("dlq reason validity mismatch")
	}
}
