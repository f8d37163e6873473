package output

import (
	"fmt"
	"time"

	"github.com/ldclabs/1paying/internal/x402"
)

// OptionDisplay is the terminal rendering of one payment requirement.
type OptionDisplay struct {
	Index     int    `json:"index"`
	Scheme    string `json:"scheme"`
	Network   string `json:"network"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"`
	PayTo     string `json:"payTo"`
	Resource  string `json:"resource,omitempty"`
	Supported bool   `json:"supported"`
}

// DisplayOptions converts payment requirements for display, marking the
// ones the current session can pay on.
func DisplayOptions(accepts []x402.PaymentRequirements, supportNetworks []string) []OptionDisplay {
	supported := make(map[string]bool, len(supportNetworks))
	for _, n := range supportNetworks {
		supported[n] = true
	}

	out := make([]OptionDisplay, 0, len(accepts))
	for i := range accepts {
		req := &accepts[i]
		out = append(out, OptionDisplay{
			Index:     i,
			Scheme:    req.Scheme,
			Network:   req.Network,
			Amount:    req.MaxAmountRequired,
			Asset:     req.Asset,
			PayTo:     req.PayTo,
			Resource:  req.Resource,
			Supported: supported[req.Network] || (x402.IsICPNetwork(req.Network) && supported["icp"]),
		})
	}
	return out
}

// PrintOptions renders the payment options table.
func PrintOptions(options []OptionDisplay) {
	for _, opt := range options {
		mark := " "
		if opt.Supported {
			mark = "*"
		}
		fmt.Printf("%s [%d] %-14s %-8s %s -> %s\n",
			mark, opt.Index, opt.Network, opt.Scheme, opt.Amount, opt.PayTo)
	}
}

// FormatExpiration renders a millisecond timestamp with its remaining
// lifetime, e.g. "2026-10-01T12:00:00Z (in 29d)".
func FormatExpiration(ms int64, now time.Time) string {
	t := time.UnixMilli(ms).UTC()
	left := t.Sub(now)
	if left <= 0 {
		return fmt.Sprintf("%s (expired)", t.Format(time.RFC3339))
	}
	if days := int(left.Hours() / 24); days > 0 {
		return fmt.Sprintf("%s (in %dd)", t.Format(time.RFC3339), days)
	}
	return fmt.Sprintf("%s (in %s)", t.Format(time.RFC3339), left.Round(time.Minute))
}
