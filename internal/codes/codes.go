// Package codes normalizes ICD-10 diagnosis and ICD-9-CM procedure codes
// into the dotted form used as keys by every reference table.
package codes

import (
	"sort"
	"strings"
)

// CategoryLength is the length of an ICD-10 category (J18 for J18.9).
const CategoryLength = 3

// procedureStemLength is where the dot goes in a procedure code (87.44).
const procedureStemLength = 2

// SignatureSeparator joins a procedure signature into one string.
const SignatureSeparator = ";"

func compact(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '-':
			return -1
		}
		return r
	}, code)
}

// Diagnosis returns the canonical dotted form of a diagnosis code:
// "j189" and "J18.9" both become "J18.9".
func Diagnosis(code string) string {
	c := compact(code)
	if len(c) <= CategoryLength {
		return c
	}
	return c[:CategoryLength] + "." + c[CategoryLength:]
}

// Procedure returns the canonical dotted form of a procedure code:
// "8744" becomes "87.44".
func Procedure(code string) string {
	c := compact(code)
	if len(c) <= procedureStemLength {
		return c
	}
	return c[:procedureStemLength] + "." + c[procedureStemLength:]
}

// Category returns the 3-character category of a diagnosis code.
func Category(diagnosis string) string {
	c := compact(diagnosis)
	if len(c) <= CategoryLength {
		return c
	}
	return c[:CategoryLength]
}

// Diagnoses normalizes a list, dropping blanks.
func Diagnoses(list []string) []string {
	return normalizeAll(list, Diagnosis)
}

// Procedures normalizes a list, dropping blanks and keeping order.
func Procedures(list []string) []string {
	return normalizeAll(list, Procedure)
}

func normalizeAll(list []string, fn func(string) string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if n := fn(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Signature returns the sorted, deduplicated set of normalized procedure
// codes. Two claims with the same procedures in any order share a
// signature.
func Signature(procedures []string) []string {
	seen := make(map[string]struct{}, len(procedures))
	out := make([]string, 0, len(procedures))
	for _, p := range procedures {
		n := Procedure(p)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SignatureKey joins a signature for storage and map lookups.
func SignatureKey(procedures []string) string {
	return strings.Join(Signature(procedures), SignatureSeparator)
}

// SplitSignature is the inverse of SignatureKey.
func SplitSignature(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, SignatureSeparator)
}

// BillingCode returns a billing code trimmed and upper-cased. Dashes are
// part of the code and kept.
func BillingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HospitalClass returns a hospital class trimmed and upper-cased.
func HospitalClass(class string) string {
	return strings.ToUpper(strings.TrimSpace(class))
}
