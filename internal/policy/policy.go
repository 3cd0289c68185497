package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
)

// DedupMode selects how repeated issuance requests are detected. The modes
// are mutually exclusive deployment choices, not stacked rules.
type DedupMode string

const (
	// DedupNone issues on every valid payment, unconditionally.
	DedupNone DedupMode = "none"
	// DedupOrder rejects a second issuance carrying an order key that was
	// already granted.
	DedupOrder DedupMode = "order"
	// DedupDaily rejects a second issuance for the same user inside the
	// same local calendar day, regardless of order key.
	DedupDaily DedupMode = "daily"
)

func ParseDedupMode(value string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(value))) {
	case DedupNone:
		return DedupNone, nil
	case DedupOrder:
		return DedupOrder, nil
	case DedupDaily:
		return DedupDaily, nil
	}
	return "", fmt.Errorf("unknown dedup mode %q", value)
}

// Tier grants Grant entitlements to any payment of at least MinAmount.
type Tier struct {
	MinAmount int64
	Grant     int
}

// DefaultTiers returns the stock tier table: 300000 pays 3, 200000 pays 2,
// 100000 pays 1.
func DefaultTiers() []Tier {
	return []Tier{
		{MinAmount: 300000, Grant: 3},
		{MinAmount: 200000, Grant: 2},
		{MinAmount: 100000, Grant: 1},
	}
}

// ParseTiers parses a "minAmount:grant,minAmount:grant" spec, e.g.
// "300000:3,200000:2,100000:1". Order does not matter.
func ParseTiers(spec string) ([]Tier, error) {
	if strings.TrimSpace(spec) == "" {
		return DefaultTiers(), nil
	}

	var tiers []Tier
	for _, part := range strings.Split(spec, ",") {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid tier %q, want minAmount:grant", part)
		}
		minAmount, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || minAmount <= 0 {
			return nil, fmt.Errorf("invalid tier amount %q", fields[0])
		}
		grant, err := strconv.Atoi(fields[1])
		if err != nil || grant <= 0 {
			return nil, fmt.Errorf("invalid tier grant %q", fields[1])
		}
		tiers = append(tiers, Tier{MinAmount: minAmount, Grant: grant})
	}
	return tiers, nil
}

// Policy decides grant sizes and dedup windows. It holds no mutable state
// and is safe for concurrent use.
type Policy struct {
	tiers []Tier
	mode  DedupMode
	loc   *time.Location
}

// New builds a Policy. Tiers are sorted highest-first so Grant can take the
// first matching tier. loc is the timezone used for daily dedup windows.
func New(tiers []Tier, mode DedupMode, loc *time.Location) *Policy {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAmount > sorted[j].MinAmount
	})
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{tiers: sorted, mode: mode, loc: loc}
}

func (p *Policy) Mode() DedupMode {
	return p.mode
}

// ValidateIssueRequest checks required fields before any tier or dedup logic
// runs. An absent or zero payment amount counts as a missing field, matching
// the request contract; amounts above zero but below the lowest tier are an
// InsufficientPayment rejection from Grant instead.
func (p *Policy) ValidateIssueRequest(userID string, orderNumbers []string, amountPaid int64) error {
	if userID == "" || len(orderNumbers) == 0 || amountPaid <= 0 {
		return domain.ErrMissingFields
	}
	for _, n := range orderNumbers {
		if n == "" {
			return domain.ErrMissingFields
		}
	}
	return nil
}

// Grant maps a payment amount to an entitlement count via the tier table.
// Boundaries are inclusive at each tier.
func (p *Policy) Grant(amountPaid int64) (int, error) {
	for _, t := range p.tiers {
		if amountPaid >= t.MinAmount {
			return t.Grant, nil
		}
	}
	return 0, domain.ErrInsufficientPayment
}

// OrderKey folds an ordered collection of order numbers into the single
// dedup unit stored on the record. Separators inside an order number are
// backslash-escaped so distinct collections never fold to the same key
// ({"a,b"} vs {"a", "b"}).
func (p *Policy) OrderKey(orderNumbers []string) string {
	escaped := make([]string, len(orderNumbers))
	for i, n := range orderNumbers {
		n = strings.ReplaceAll(n, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(n, ",", `\,`)
	}
	return strings.Join(escaped, ",")
}

// DayWindow returns the [midnight, next midnight) window containing at,
// in the policy's timezone.
func (p *Policy) DayWindow(at time.Time) (time.Time, time.Time) {
	local := at.In(p.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
	return midnight, midnight.AddDate(0, 0, 1)
}
