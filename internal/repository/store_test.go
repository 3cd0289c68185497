package repository

import (
	"strings"
	"testing"
)

func TestRedeemOldestRechecksBalanceOnOuterUpdate(t *testing.T) {
	// Under READ COMMITTED only the outer WHERE clause is re-evaluated
	// against a row version committed by a concurrent writer; the id
	// subquery is not. The balance guard must therefore appear on the outer
	// UPDATE itself, not just inside the subquery, or a redeem racing a
	// reset would drive the record into the CHECK constraint instead of
	// reporting an empty balance.
	idx := strings.Index(redeemOldestSQL, "(")
	if idx < 0 {
		t.Fatal("expected a subquery in the redeem statement")
	}
	outer := redeemOldestSQL[:idx]

	if !strings.Contains(outer, "entitlements_granted > 0") {
		t.Fatalf("outer UPDATE is missing the balance guard: %s", outer)
	}
	if strings.Count(redeemOldestSQL, "entitlements_granted > 0") != 2 {
		t.Fatalf("expected the balance guard on both the outer UPDATE and the subquery:\n%s", redeemOldestSQL)
	}
}
