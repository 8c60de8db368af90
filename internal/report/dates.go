package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"adreport/internal/model"
)

// ParseRequestDate parses a YYYY-MM-DD request date.
func ParseRequestDate(value string) (time.Time, error) {
	return time.Parse(model.StorageDateLayout, strings.TrimSpace(value))
}

// IsFutureDate reports whether day lies strictly after today's date in now's location.
func IsFutureDate(day, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return d.After(today)
}

// FormatDate renders day with a strftime-style pattern. Supported directives:
// %Y %y %m %-m %d %-d %b %B %j %%.
func FormatDate(day time.Time, pattern string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(pattern) {
			return "", fmt.Errorf("date format %q: dangling %%", pattern)
		}
		i++
		noPad := false
		if pattern[i] == '-' {
			if i+1 >= len(pattern) {
				return "", fmt.Errorf("date format %q: dangling %%-", pattern)
			}
			noPad = true
			i++
		}
		directive := pattern[i]
		switch directive {
		case 'Y':
			b.WriteString(strconv.Itoa(day.Year()))
		case 'y':
			b.WriteString(fmt.Sprintf("%02d", day.Year()%100))
		case 'm':
			b.WriteString(pad(int(day.Month()), 2, noPad))
		case 'd':
			b.WriteString(pad(day.Day(), 2, noPad))
		case 'j':
			b.WriteString(pad(day.YearDay(), 3, noPad))
		case 'b':
			b.WriteString(day.Format("Jan"))
		case 'B':
			b.WriteString(day.Format("January"))
		case '%':
			if noPad {
				return "", fmt.Errorf("date format %q: unsupported directive %%-%%", pattern)
			}
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("date format %q: unsupported directive %%%c", pattern, directive)
		}
	}
	return b.String(), nil
}

func pad(value, width int, noPad bool) string {
	if noPad {
		return strconv.Itoa(value)
	}
	return fmt.Sprintf("%0*d", width, value)
}

// ExpandURL substitutes the formatted date into a network URL template.
// Both "{}" and "{date}" placeholders are recognized.
func ExpandURL(template, date string) string {
	out := strings.ReplaceAll(template, "{date}", date)
	return strings.ReplaceAll(out, "{}", date)
}

func parseDisplayDate(value string) (time.Time, error) {
	return time.Parse(model.DisplayDateLayout, strings.TrimSpace(value))
}

// reportDateLayouts are tried in order. Day and month may be one or two
// digits.
var reportDateLayouts = []string{"2/1/2006", "2006-1-2"}

// parseReportDate accepts the DD/MM/YYYY layout carried in reports and falls
// back to YYYY-MM-DD.
func parseReportDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var err error
	for _, layout := range reportDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// isTotalsLabel reports whether a date cell carries a label such as "Total"
// rather than a date in any layout.
func isTotalsLabel(value string) bool {
	return !strings.ContainsAny(value, "0123456789")
}
