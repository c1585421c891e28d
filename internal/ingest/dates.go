package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ptMonths = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "março": time.March,
	"marco": time.March, "abril": time.April, "maio": time.May,
	"junho": time.June, "julho": time.July, "agosto": time.August,
	"setembro": time.September, "outubro": time.October,
	"novembro": time.November, "dezembro": time.December,
}

var ptLongDate = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+([a-zçã]+)\s+de\s+(20\d{2})\b`)

// ParseDateBR parses the date formats Brazilian portals publish: numeric
// dd/mm/yyyy (with optional time), ISO, and the written-out
// "2 de janeiro de 2026" form. Date-only values resolve to end of day so a
// deadline on the 10th still counts through the 10th.
func ParseDateBR(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}

	for _, layout := range []string{
		"02/01/2006 15:04",
		"02/01/2006 15h04",
		"2/1/2006 15:04",
	} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02-01-2006"} {
		if t, err := time.Parse(layout, text); err == nil {
			return toEndOfDay(t), nil
		}
	}

	if m := ptLongDate.FindStringSubmatch(text); m != nil {
		month, ok := ptMonths[strings.ToLower(m[2])]
		if ok {
			var day, year int
			fmt.Sscanf(m[1], "%d", &day)
			fmt.Sscanf(m[3], "%d", &year)
			if day >= 1 && day <= 31 {
				return toEndOfDay(time.Date(year, month, day, 0, 0, 0, 0, time.UTC)), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
