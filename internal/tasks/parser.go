// Package tasks turns pasted free-text task lists into stored task batches.
package tasks

import (
	"regexp"
	"strconv"
	"strings"
)

// Parse methods recorded on every TaskItem.
const (
	MethodRegex   = "regex_v1"
	MethodDefault = "default"
	MethodEmpty   = "empty"
)

const defaultMinutes = 60

// durationPattern matches a trailing duration such as 30m, 1h, 2.5h, 90min,
// 1.5hr or "2 hours".
var durationPattern = regexp.MustCompile(`(?i)\s+(\d+\.?\d*)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours)\s*$`)

// Parsed is the outcome of ParseLine.
type Parsed struct {
	Title      string
	Minutes    int
	Confidence float64
	Method     string
}

// ParseLine extracts a title and a duration from one line. Lines without a
// duration get an hour at half confidence.
func ParseLine(line string) Parsed {
	line = strings.TrimSpace(line)
	if line == "" {
		return Parsed{Minutes: defaultMinutes, Confidence: 0, Method: MethodEmpty}
	}

	m := durationPattern.FindStringSubmatchIndex(line)
	if m == nil {
		return Parsed{Title: line, Minutes: defaultMinutes, Confidence: 0.5, Method: MethodDefault}
	}

	value, err := strconv.ParseFloat(line[m[2]:m[3]], 64)
	if err != nil {
		return Parsed{Title: line, Minutes: defaultMinutes, Confidence: 0.5, Method: MethodDefault}
	}
	minutes := int(value)
	if unit := strings.ToLower(line[m[4]:m[5]]); strings.HasPrefix(unit, "h") {
		minutes = int(value * 60)
	}
	return Parsed{
		Title:      strings.TrimSpace(line[:m[0]]),
		Minutes:    minutes,
		Confidence: 1.0,
		Method:     MethodRegex,
	}
}
