package events

import "math/big"

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
