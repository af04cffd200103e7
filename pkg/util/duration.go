package util

import (
	"fmt"
	"time"
)

// FormatDuration renders d the way status replies show it: minutes under an
// hour, hours under a day, days otherwise.
//
//	FormatDuration(45*time.Minute) // "45 min"
//	FormatDuration(5*time.Hour)    // "5 h"
//	FormatDuration(50*time.Hour)   // "2 d"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h", int(d.Hours()))
	default:
		return fmt.Sprintf("%d d", int(d.Hours()/24))
	}
}

// FormatInZone formats t in loc with the template placeholders YYYY, MM, DD,
// hh and mm.
func FormatInZone(t time.Time, loc *time.Location, tpl string) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(goLayout(tpl))
}

func goLayout(tpl string) string {
	out := make([]byte, 0, len(tpl))
	for i := 0; i < len(tpl); {
		switch {
		case hasAt(tpl, i, "YYYY"):
			out, i = append(out, "2006"...), i+4
		case hasAt(tpl, i, "MM"):
			out, i = append(out, "01"...), i+2
		case hasAt(tpl, i, "DD"):
			out, i = append(out, "02"...), i+2
		case hasAt(tpl, i, "hh"):
			out, i = append(out, "15"...), i+2
		case hasAt(tpl, i, "mm"):
			out, i = append(out, "04"...), i+2
		default:
			out, i = append(out, tpl[i]), i+1
		}
	}
	return string(out)
}

func hasAt(s string, i int, sub string) bool {
	return len(s)-i >= len(sub) && s[i:i+len(sub)] == sub
}
