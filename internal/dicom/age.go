package dicom

import (
	"fmt"
	"strings"
	"time"
)

const maxAge = 999

// patientAge formats the age at the reference date as a DICOM age string
// (nnnY, nnnM or nnnD). With no units given, years are used from two years
// up, months from two months up, and days below that.
func patientAge(birth, reference, units string) (string, bool) {
	b, err := time.Parse("20060102", strings.TrimSpace(birth))
	if err != nil {
		return "", false
	}
	r, err := time.Parse("20060102", strings.TrimSpace(reference))
	if err != nil || r.Before(b) {
		return "", false
	}

	years := r.Year() - b.Year()
	months := years*12 + int(r.Month()) - int(b.Month())
	if r.Day() < b.Day() {
		months--
	}
	years = months / 12
	days := int(r.Sub(b).Hours() / 24)

	if units == "" {
		switch {
		case years >= 2:
			units = "Y"
		case months >= 2:
			units = "M"
		default:
			units = "D"
		}
	}

	var n int
	switch units {
	case "Y":
		n = years
	case "M":
		n = months
	default:
		units = "D"
		n = days
	}
	if n > maxAge {
		n = maxAge
	}
	return fmt.Sprintf("%03d%s", n, units), true
}
