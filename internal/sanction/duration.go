package sanction

import (
	"fmt"
	"math"
	"time"
)

var durationUnits = []struct {
	span time.Duration
	name string
}{
	{365 * 24 * time.Hour, "year"},
	{30 * 24 * time.Hour, "month"},
	{7 * 24 * time.Hour, "week"},
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

// formatDuration renders a finite block length as its largest round
// unit: "2 hours", "1 week", "3 months".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	for _, u := range durationUnits {
		if d < u.span {
			continue
		}
		n := int(math.Round(float64(d) / float64(u.span)))
		if n == 1 {
			return fmt.Sprintf("1 %s", u.name)
		}
		return fmt.Sprintf("%d %ss", n, u.name)
	}
	return "less than a minute"
}
