package shop

import (
	"math"
	"strconv"
	"strings"
)

var fileSizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatNumber groups digits in threes with spaces: 12990 -> "12 990".
func FormatNumber(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	if len(digits) <= 3 {
		return sign + digits
	}

	var b strings.Builder
	b.WriteString(sign)
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > len(sign) {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatPrice renders a ruble amount: 1290 -> "1 290 ₽".
func FormatPrice(rubles int) string {
	return FormatNumber(int64(rubles)) + " ₽"
}

// FormatFileSize renders a byte count with at most two decimals: 1536 -> "1.5 KB".
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}

	unit := 0
	value := float64(size)
	for value >= 1024 && unit < len(fileSizeUnits)-1 {
		value /= 1024
		unit++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + fileSizeUnits[unit]
}
