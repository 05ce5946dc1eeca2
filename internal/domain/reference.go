package domain

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
)

// TariffKey uniquely identifies a tariff row. All four parts are
// required: government and private hospitals of the same class and
// region carry different prices for the same billing code.
type TariffKey struct {
	BillingCode   string       `json:"billingCode"`
	Region        int          `json:"region"`
	HospitalClass string       `json:"hospitalClass"`
	HospitalType  HospitalType `json:"hospitalType"`
}

// String renders the key for cache lookups and log lines.
func (k TariffKey) String() string {
	return k.BillingCode + "|" + strconv.Itoa(k.Region) + "|" + k.HospitalClass + "|" + string(k.HospitalType)
}

// TariffEntry is one priced billing code for a facility tuple.
type TariffEntry struct {
	BillingCode   string                         `json:"billingCode" yaml:"billing_code"`
	Description   string                         `json:"description" yaml:"description"`
	Region        int                            `json:"region" yaml:"region"`
	HospitalClass string                         `json:"hospitalClass" yaml:"hospital_class"`
	HospitalType  HospitalType                   `json:"hospitalType" yaml:"hospital_type"`
	Prices        map[PayerClass]decimal.Decimal `json:"prices" yaml:"-"`
}

// Key returns the unique 4-tuple of the entry.
func (t *TariffEntry) Key() TariffKey {
	return TariffKey{
		BillingCode:   t.BillingCode,
		Region:        t.Region,
		HospitalClass: t.HospitalClass,
		HospitalType:  t.HospitalType,
	}
}

// EmpiricalPattern is a billing code observed for a diagnosis and a
// procedure signature in historical claims.
type EmpiricalPattern struct {
	ServiceType      ServiceType `json:"serviceType" yaml:"service_type"`
	PrimaryDiagnosis string      `json:"primaryDiagnosis" yaml:"primary_diagnosis"`
	// MainProcedure is the procedure listed first on the source claims.
	// Empty means the first element of Procedures.
	MainProcedure string   `json:"mainProcedure,omitempty" yaml:"main_procedure"`
	Procedures    []string `json:"procedures" yaml:"procedures"`
	BillingCode   string   `json:"billingCode" yaml:"billing_code"`
	Frequency     int      `json:"frequency" yaml:"frequency"`
}

// Main returns the primary procedure of the pattern.
func (p *EmpiricalPattern) Main() string {
	if p.MainProcedure != "" {
		return p.MainProcedure
	}
	if len(p.Procedures) > 0 {
		return p.Procedures[0]
	}
	return ""
}

// DiagnosisGroupRule maps a diagnosis range to a group category.
// A rule whose start and end are the same full code is an exact-code
// rule and wins over range rules.
type DiagnosisGroupRule struct {
	RangeStart  string `json:"rangeStart" yaml:"range_start"`
	RangeEnd    string `json:"rangeEnd" yaml:"range_end"`
	Category    string `json:"category" yaml:"category"`
	Priority    int    `json:"priority" yaml:"priority"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// ProcedureInfo is taxonomy data for a procedure code.
type ProcedureInfo struct {
	Code         string `json:"code" yaml:"code"`
	ChapterRange string `json:"chapterRange" yaml:"chapter_range"`
	IsMajor      bool   `json:"isMajor" yaml:"is_major"`
	BodySystem   string `json:"bodySystem" yaml:"body_system"`
	Description  string `json:"description,omitempty" yaml:"description"`
}

// Relation names one of the three consistency rule maps.
type Relation string

const (
	RelationDiagnosisProcedure Relation = "diagnosis_procedure"
	RelationDiagnosisDrug      Relation = "diagnosis_drug"
	RelationProcedureDrug      Relation = "procedure_drug"
)

// Relations lists the relations in reporting order.
var Relations = []Relation{RelationDiagnosisProcedure, RelationDiagnosisDrug, RelationProcedureDrug}

// ConsistencyRule lists the values expected for a key under a relation.
type ConsistencyRule struct {
	Relation Relation `json:"relation"`
	Key      string   `json:"key"`
	Values   []string `json:"values"`
}

// ReferenceData is the full set of reference tables loaded at start.
type ReferenceData struct {
	Tariffs          []TariffEntry
	Patterns         []EmpiricalPattern
	GroupRules       []DiagnosisGroupRule
	Procedures       []ProcedureInfo
	ConsistencyRules []ConsistencyRule
}

// ReferenceStore is read-only access to the reference tables used by the
// code and tariff resolvers. Lookups that find nothing return empty
// results, except Tariff which returns ErrTariffNotFound. I/O failures
// are reported as ErrReferenceStoreUnavailable.
type ReferenceStore interface {
	// PatternsByDiagnosis returns all patterns for a service type and
	// normalized primary diagnosis.
	PatternsByDiagnosis(ctx context.Context, serviceType ServiceType, diagnosis string) ([]EmpiricalPattern, error)

	// PatternsByCategory returns all patterns whose primary diagnosis
	// shares the 3-character category.
	PatternsByCategory(ctx context.Context, serviceType ServiceType, category string) ([]EmpiricalPattern, error)

	// Procedure returns nil, nil for unknown codes.
	Procedure(ctx context.Context, code string) (*ProcedureInfo, error)

	GroupRules(ctx context.Context) ([]DiagnosisGroupRule, error)

	Tariff(ctx context.Context, key TariffKey) (*TariffEntry, error)
}
