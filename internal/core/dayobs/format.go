package dayobs

import (
	"fmt"
	"math"
)

// NA marks a value that is unavailable
const NA = "NA"

// FormatHours renders fractional hours as H:MM:SS rounded to the second.
// NaN and ±Inf render as NA; negative values keep a leading minus
func FormatHours(h float64) string {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return NA
	}
	return formatSeconds(math.Round(h * 3600))
}

// FormatMinutes renders fractional minutes as H:MM:SS
func FormatMinutes(m float64) string {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return NA
	}
	return formatSeconds(math.Round(m * 60))
}

func formatSeconds(total float64) string {
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	s := int64(total)
	return fmt.Sprintf("%s%d:%02d:%02d", sign, s/3600, s/60%60, s%60)
}
