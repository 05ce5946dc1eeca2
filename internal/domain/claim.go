// Package domain defines the core interfaces and types for the claim engine.
package domain

import (
	"fmt"
	"strings"
)

// ServiceType is the care setting of a claim episode.
type ServiceType string

const (
	ServiceInpatient  ServiceType = "inpatient"
	ServiceOutpatient ServiceType = "outpatient"
)

// ParseServiceType accepts the English names and the Indonesian
// abbreviations used on hospital claim forms (RI / RJ).
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inpatient", "rawat inap", "ri", "ranap":
		return ServiceInpatient, nil
	case "outpatient", "rawat jalan", "rj", "rajal":
		return ServiceOutpatient, nil
	}
	return "", fmt.Errorf("%w: unknown service type %q", ErrInvalidClaimInput, s)
}

// Valid reports whether s is one of the known service types.
func (s ServiceType) Valid() bool {
	return s == ServiceInpatient || s == ServiceOutpatient
}

// HospitalType distinguishes government from private facilities.
// It is part of the tariff key.
type HospitalType string

const (
	HospitalGovernment HospitalType = "government"
	HospitalPrivate    HospitalType = "private"
)

// ParseHospitalType accepts English and Indonesian spellings.
func ParseHospitalType(s string) (HospitalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "government", "pemerintah", "public":
		return HospitalGovernment, nil
	case "private", "swasta":
		return HospitalPrivate, nil
	}
	return "", fmt.Errorf("%w: unknown hospital type %q", ErrInvalidClaimInput, s)
}

// Valid reports whether h is one of the known hospital types.
func (h HospitalType) Valid() bool {
	return h == HospitalGovernment || h == HospitalPrivate
}

// PayerClass is the coverage tier used to pick one of the stored prices.
type PayerClass int

const (
	PayerClass1 PayerClass = 1
	PayerClass2 PayerClass = 2
	PayerClass3 PayerClass = 3
)

// Valid reports whether p is within 1..3.
func (p PayerClass) Valid() bool {
	return p >= PayerClass1 && p <= PayerClass3
}

// Regions are numbered 1..5.
const (
	MinRegion = 1
	MaxRegion = 5
)

// Facility describes where a claim was treated. It is supplied by the
// caller and never derived by the engine.
type Facility struct {
	Region        int          `json:"region"`
	HospitalClass string       `json:"hospitalClass"`
	HospitalType  HospitalType `json:"hospitalType"`
	PayerClass    PayerClass   `json:"payerClass"`
}

// Validate checks the facility descriptor.
func (f Facility) Validate() error {
	if f.Region < MinRegion || f.Region > MaxRegion {
		return fmt.Errorf("%w: region must be between %d and %d", ErrInvalidClaimInput, MinRegion, MaxRegion)
	}
	if strings.TrimSpace(f.HospitalClass) == "" {
		return fmt.Errorf("%w: hospital class is required", ErrInvalidClaimInput)
	}
	if !f.HospitalType.Valid() {
		return fmt.Errorf("%w: unknown hospital type %q", ErrInvalidClaimInput, f.HospitalType)
	}
	if !f.PayerClass.Valid() {
		return fmt.Errorf("%w: payer class must be 1, 2 or 3", ErrInvalidClaimInput)
	}
	return nil
}

// Claim is a submission already parsed into normalized strings by the
// upstream input layer.
type Claim struct {
	ID                 string      `json:"id,omitempty"`
	ServiceType        ServiceType `json:"serviceType"`
	PrimaryDiagnosis   string      `json:"primaryDiagnosis"`
	SecondaryDiagnoses []string    `json:"secondaryDiagnoses,omitempty"`
	Procedures         []string    `json:"procedures,omitempty"`
	Drugs              []string    `json:"drugs,omitempty"`
	Facility           Facility    `json:"facility"`
	FreeText           string      `json:"freeText,omitempty"`
}

// CodeRequest returns the part of the claim the code resolver consumes.
func (c *Claim) CodeRequest() CodeRequest {
	return CodeRequest{
		ServiceType:        c.ServiceType,
		PrimaryDiagnosis:   c.PrimaryDiagnosis,
		SecondaryDiagnoses: c.SecondaryDiagnoses,
		Procedures:         c.Procedures,
	}
}
