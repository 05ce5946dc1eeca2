package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// diagnosisFormat is an ICD-10 code after normalization: J18, J18.9, S72.001A.
var diagnosisFormat = regexp.MustCompile(`^[A-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)

// Request is a normalized code request shared by every strategy.
type Request struct {
	ServiceType domain.ServiceType
	Diagnosis   string
	Category    string
	Secondary   []string
	// Procedures keeps the claim order; the first one is the main procedure.
	Procedures []string
	Signature  []string
}

// MainProcedure returns the first claimed procedure or "".
func (r *Request) MainProcedure() string {
	if len(r.Procedures) == 0 {
		return ""
	}
	return r.Procedures[0]
}

// NewRequest validates and normalizes a code request.
func NewRequest(in domain.CodeRequest) (*Request, error) {
	if !in.ServiceType.Valid() {
		st, err := domain.ParseServiceType(string(in.ServiceType))
		if err != nil {
			return nil, err
		}
		in.ServiceType = st
	}

	dx := codes.Diagnosis(in.PrimaryDiagnosis)
	if dx == "" {
		return nil, fmt.Errorf("%w: primary diagnosis is required", domain.ErrInvalidClaimInput)
	}
	if !diagnosisFormat.MatchString(dx) {
		return nil, fmt.Errorf("%w: malformed diagnosis code %q", domain.ErrInvalidClaimInput, in.PrimaryDiagnosis)
	}

	procs := codes.Procedures(in.Procedures)
	return &Request{
		ServiceType: in.ServiceType,
		Diagnosis:   dx,
		Category:    codes.Category(dx),
		Secondary:   codes.Diagnoses(in.SecondaryDiagnoses),
		Procedures:  procs,
		Signature:   codes.Signature(procs),
	}, nil
}

// CacheKey identifies the full request. Secondary diagnoses are sorted;
// procedures keep their order because the first one is significant.
func (r *Request) CacheKey() string {
	secondary := append([]string(nil), r.Secondary...)
	sort.Strings(secondary)

	var b strings.Builder
	b.WriteString(string(r.ServiceType))
	b.WriteByte('|')
	b.WriteString(r.Diagnosis)
	b.WriteByte('|')
	b.WriteString(strings.Join(secondary, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(r.Procedures, ","))
	return b.String()
}
