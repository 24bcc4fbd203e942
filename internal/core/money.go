// Package core provides amount parsing and formatting utilities.
//
// Amounts are whole yen, the smallest unit of the ledger currency, and are
// never negative once stored.
package core

import (
	"strconv"
	"strings"
)

// amountNoise lists the characters stripped before an amount is parsed.
var amountNoise = strings.NewReplacer("¥", "", "￥", "", ",", "", "、", "")

// ParseAmount normalizes a foreign amount string to a non-negative integer.
//
// Currency symbols (¥, ￥) and thousands separators (",", "、") are removed,
// then the leading integer is read, ignoring anything after it. The sign is
// dropped, so refunds exported as negative numbers become positive amounts.
//
// Examples:
//
//	ParseAmount("1,200")  -> 1200, nil
//	ParseAmount("¥-350")  -> 350, nil
//	ParseAmount("12.9")   -> 12, nil
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(amountNoise.Replace(s))
	if s == "" {
		return 0, ErrInvalidAmount
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i = 1
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, ErrInvalidAmount
	}
	n, err := strconv.ParseInt(s[i:j], 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return n, nil
}

// FormatYen renders an amount with a yen sign and thousands separators.
func FormatYen(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("¥")
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
