package currency

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultUSDRate is how many MWK one USD buys when no override is configured.
const DefaultUSDRate = 1700.0

// USDRate returns the configured MWK-per-USD exchange rate.
func USDRate() float64 {
	if v := os.Getenv("EXCHANGE_RATE_USD_MWK"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			return rate
		}
	}
	return DefaultUSDRate
}

// ToUSDCents converts an MWK amount to US dollars at the given rate and to
// the minor-unit amount the hosted checkout expects.
func ToUSDCents(amountMWK, rate float64) (usd float64, cents int64) {
	if rate <= 0 {
		rate = DefaultUSDRate
	}
	usd = amountMWK / rate
	cents = int64(usd * 100)
	return usd, cents
}

// Format renders an amount with its currency code, e.g. "MWK 85,000.00".
func Format(amount float64, code string) string {
	return fmt.Sprintf("%s %s", strings.ToUpper(code), group(amount))
}

func group(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
