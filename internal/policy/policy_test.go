package policy

import (
	"testing"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(mode DedupMode) *Policy {
	return New(DefaultTiers(), mode, time.UTC)
}

func TestGrantTiers(t *testing.T) {
	p := newTestPolicy(DedupOrder)

	tests := []struct {
		name   string
		amount int64
		grant  int
		err    error
	}{
		{"far above top tier", 1_000_000, 3, nil},
		{"top tier boundary", 300000, 3, nil},
		{"just under top tier", 299999, 2, nil},
		{"middle of second tier", 250000, 2, nil},
		{"second tier boundary", 200000, 2, nil},
		{"just under second tier", 199999, 1, nil},
		{"first tier boundary", 100000, 1, nil},
		{"just under first tier", 99999, 0, domain.ErrInsufficientPayment},
		{"tiny payment", 1, 0, domain.ErrInsufficientPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := p.Grant(tt.amount)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.grant, grant)
		})
	}
}

func TestValidateIssueRequest(t *testing.T) {
	p := newTestPolicy(DedupOrder)

	require.NoError(t, p.ValidateIssueRequest("user1", []string{"ord-1"}, 100000))
	require.NoError(t, p.ValidateIssueRequest("user1", []string{"ord-1", "ord-2"}, 250000))

	assert.ErrorIs(t, p.ValidateIssueRequest("", []string{"ord-1"}, 100000), domain.ErrMissingFields)
	assert.ErrorIs(t, p.ValidateIssueRequest("user1", nil, 100000), domain.ErrMissingFields)
	assert.ErrorIs(t, p.ValidateIssueRequest("user1", []string{}, 100000), domain.ErrMissingFields)
	assert.ErrorIs(t, p.ValidateIssueRequest("user1", []string{""}, 100000), domain.ErrMissingFields)
	assert.ErrorIs(t, p.ValidateIssueRequest("user1", []string{"ord-1"}, 0), domain.ErrMissingFields)
	assert.ErrorIs(t, p.ValidateIssueRequest("user1", []string{"ord-1"}, -5), domain.ErrMissingFields)
}

func TestOrderKeyJoinsCollection(t *testing.T) {
	p := newTestPolicy(DedupOrder)

	assert.Equal(t, "ord-1", p.OrderKey([]string{"ord-1"}))
	assert.Equal(t, "ord-1,ord-2", p.OrderKey([]string{"ord-1", "ord-2"}))
}

func TestOrderKeyEscapesSeparators(t *testing.T) {
	p := newTestPolicy(DedupOrder)

	// A comma inside an order number must not fold to the same key as two
	// separate numbers.
	assert.NotEqual(t, p.OrderKey([]string{"a", "b"}), p.OrderKey([]string{"a,b"}))
	assert.Equal(t, `a\,b`, p.OrderKey([]string{"a,b"}))

	// Backslashes are escaped too, so pre-escaped input can't forge a key.
	assert.NotEqual(t, p.OrderKey([]string{"a,b"}), p.OrderKey([]string{`a\,b`}))
	assert.Equal(t, `a\\,b`, p.OrderKey([]string{`a\`, "b"}))
}

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("300000:3,200000:2,100000:1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTiers(), tiers)

	tiers, err = ParseTiers(" 50000:1 ")
	require.NoError(t, err)
	assert.Equal(t, []Tier{{MinAmount: 50000, Grant: 1}}, tiers)

	// Empty spec falls back to the stock table.
	tiers, err = ParseTiers("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTiers(), tiers)

	_, err = ParseTiers("abc")
	assert.Error(t, err)
	_, err = ParseTiers("100000:x")
	assert.Error(t, err)
	_, err = ParseTiers("-5:1")
	assert.Error(t, err)
	_, err = ParseTiers("100000:0")
	assert.Error(t, err)
}

func TestParseDedupMode(t *testing.T) {
	for _, input := range []string{"order", "Order", " ORDER "} {
		mode, err := ParseDedupMode(input)
		require.NoError(t, err)
		assert.Equal(t, DedupOrder, mode)
	}

	mode, err := ParseDedupMode("daily")
	require.NoError(t, err)
	assert.Equal(t, DedupDaily, mode)

	mode, err = ParseDedupMode("none")
	require.NoError(t, err)
	assert.Equal(t, DedupNone, mode)

	_, err = ParseDedupMode("weekly")
	assert.Error(t, err)
}

func TestGrantUsesUnsortedTierTable(t *testing.T) {
	// Tier order in the config string must not matter.
	p := New([]Tier{
		{MinAmount: 100000, Grant: 1},
		{MinAmount: 300000, Grant: 3},
		{MinAmount: 200000, Grant: 2},
	}, DedupNone, time.UTC)

	grant, err := p.Grant(250000)
	require.NoError(t, err)
	assert.Equal(t, 2, grant)
}

func TestDayWindow(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	p := New(DefaultTiers(), DedupDaily, seoul)

	// 2024-03-10 23:30 KST is still March 10 in Seoul.
	at := time.Date(2024, 3, 10, 23, 30, 0, 0, seoul)
	from, to := p.DayWindow(at)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, seoul), from)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, seoul), to)

	// The same instant expressed in UTC lands in the same Seoul window.
	fromUTC, toUTC := p.DayWindow(at.UTC())
	assert.True(t, from.Equal(fromUTC))
	assert.True(t, to.Equal(toUTC))
}
