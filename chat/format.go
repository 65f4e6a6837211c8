package chat

import (
	"fmt"
	"strings"
)

// usd formats a dollar amount with thousands separators, e.g. $1,234.56.
func usd(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-$" + b.String() + "." + frac
	}
	return "$" + b.String() + "." + frac
}

// signedUSD formats a PNL amount with an explicit sign, e.g. $+20.00.
func signedUSD(v float64) string {
	return fmt.Sprintf("$%+.2f", v)
}
