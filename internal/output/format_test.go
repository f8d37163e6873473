package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ldclabs/1paying/internal/x402"
)

func TestDisplayOptions(t *testing.T) {
	accepts := []x402.PaymentRequirements{
		{Scheme: "exact", Network: "base", MaxAmountRequired: "1000000", PayTo: "0xabc"},
		{Scheme: "exact", Network: "solana", MaxAmountRequired: "250000", PayTo: "payee"},
		{Scheme: "upto", Network: "icp-druyg-tyaaa-aaaaq-aactq-cai", MaxAmountRequired: "7000000"},
		{Scheme: "exact", Network: "near", MaxAmountRequired: "1"},
	}

	tests := []struct {
		name            string
		supportNetworks []string
		supported       []bool
	}{
		{
			name:            "anonymous session",
			supportNetworks: []string{"icp"},
			supported:       []bool{false, false, true, false},
		},
		{
			name:            "signed in",
			supportNetworks: []string{"icp", "solana", "solana-devnet", "base", "base-sepolia"},
			supported:       []bool{true, true, true, false},
		},
		{
			name:            "no networks",
			supportNetworks: nil,
			supported:       []bool{false, false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := DisplayOptions(accepts, tt.supportNetworks)
			assert.Len(t, options, len(accepts))
			for i, opt := range options {
				assert.Equal(t, i, opt.Index)
				assert.Equal(t, accepts[i].Network, opt.Network)
				assert.Equal(t, accepts[i].MaxAmountRequired, opt.Amount)
				assert.Equal(t, tt.supported[i], opt.Supported, "option %d", i)
			}
		})
	}
}

func TestFormatExpiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		at       time.Time
		expected string
	}{
		{"weeks away", now.Add(29*24*time.Hour + time.Hour), "2026-03-30T13:00:00Z (in 29d)"},
		{"hours away", now.Add(90 * time.Minute), "2026-03-01T13:30:00Z (in 1h30m0s)"},
		{"expired", now.Add(-time.Minute), "2026-03-01T11:59:00Z (expired)"},
		{"exactly now", now, "2026-03-01T12:00:00Z (expired)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatExpiration(tt.at.UnixMilli(), now))
		})
	}
}
