package ui

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// FCFA formats an amount as whole francs with narrow thousands grouping,
// e.g. "1 234 567 FCFA".
func FCFA(amount float64) string {
	return Amount(amount) + " FCFA"
}

// Amount formats a rounded amount with space-grouped thousands.
func Amount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "0"
	}
	return humanize.FormatInteger("# ###.", int(math.Round(amount)))
}

// Compact shortens large amounts for the KPI row: "1,2 Md", "180 M".
func Compact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return decimal(amount/1e9) + " Md"
	case abs >= 1e6:
		return decimal(amount/1e6) + " M"
	default:
		return Amount(amount)
	}
}

// Percent formats a percentage with two decimals and a French comma.
func Percent(p float64) string {
	return strings.Replace(strconv.FormatFloat(p, 'f', 2, 64), ".", ",", 1) + " %"
}

func decimal(v float64) string {
	s := strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
	return strings.Replace(s, ".", ",", 1)
}
