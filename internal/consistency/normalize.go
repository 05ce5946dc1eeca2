package consistency

import (
	"regexp"
	"strings"
)

// dosagePattern matches a number with a unit: 500mg, 500 mg, 1 g, 0.5ml, 2x1.
var dosagePattern = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:mg|mcg|µg|g|gr|gram|ml|cc|l|iu|ui|unit|units|meq|%|x\d+)?\b`)

// routeWords are administration routes and dosage forms that do not
// identify the drug.
var routeWords = map[string]struct{}{
	"iv": {}, "im": {}, "sc": {}, "po": {}, "sl": {}, "oral": {}, "per": {},
	"injeksi": {}, "injection": {}, "inj": {}, "infus": {}, "infusion": {}, "drip": {},
	"tablet": {}, "tab": {}, "tabs": {}, "kapsul": {}, "capsule": {}, "caps": {}, "cap": {},
	"sirup": {}, "syrup": {}, "syr": {}, "suspensi": {}, "suspension": {},
	"salep": {}, "ointment": {}, "krim": {}, "cream": {}, "vial": {}, "ampul": {}, "amp": {},
}

// Drug lowercases a drug name and strips dosage and route tokens:
// "Ceftriaxone 1 g IV" becomes "ceftriaxone".
func Drug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = dosagePattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', ',', '/', '+', '%':
			return ' '
		}
		return r
	}, s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, route := routeWords[f]; route {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// normalizeAll applies fn and drops values that normalize to nothing.
func normalizeAll(values []string, fn func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := fn(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}
