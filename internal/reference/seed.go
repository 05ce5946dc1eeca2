package reference

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// Seed is the YAML reference file format.
//
//	tariffs:
//	  - billing_code: A-4-10-I
//	    region: 1
//	    hospital_class: C
//	    hospital_type: pemerintah
//	    prices: {1: "5100000", 2: "4370000", 3: "3640000"}
//	consistency:
//	  diagnosis_drug:
//	    J18.9: [ceftriaxone, azithromycin]
//	policy:
//	  procedure_drug: {compliant: "score >= 0.6", partial: "score >= 0.2"}
type Seed struct {
	Tariffs     []TariffSeed                            `yaml:"tariffs"`
	Patterns    []domain.EmpiricalPattern               `yaml:"patterns"`
	GroupRules  []domain.DiagnosisGroupRule             `yaml:"group_rules"`
	Procedures  []domain.ProcedureInfo                  `yaml:"procedures"`
	Consistency map[domain.Relation]map[string][]string `yaml:"consistency"`
	Policy      map[domain.Relation]domain.VerdictBand  `yaml:"policy"`
}

// TariffSeed is one tariff row with prices written as decimal strings.
type TariffSeed struct {
	BillingCode   string         `yaml:"billing_code"`
	Description   string         `yaml:"description"`
	Region        int            `yaml:"region"`
	HospitalClass string         `yaml:"hospital_class"`
	HospitalType  string         `yaml:"hospital_type"`
	Prices        map[int]string `yaml:"prices"`
}

// LoadSeed reads and decodes a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML. Unknown fields are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// ReferenceData converts the seed into domain tables, validating enums
// and prices.
func (s *Seed) ReferenceData() (*domain.ReferenceData, error) {
	data := &domain.ReferenceData{
		GroupRules: s.GroupRules,
		Procedures: s.Procedures,
	}

	for i, t := range s.Tariffs {
		entry, err := t.entry()
		if err != nil {
			return nil, fmt.Errorf("tariff %d (%s): %w", i, t.BillingCode, err)
		}
		data.Tariffs = append(data.Tariffs, entry)
	}

	for i, p := range s.Patterns {
		st, err := domain.ParseServiceType(string(p.ServiceType))
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		p.ServiceType = st
		if p.Frequency < 1 {
			return nil, fmt.Errorf("pattern %d (%s): frequency must be at least 1", i, p.BillingCode)
		}
		data.Patterns = append(data.Patterns, p)
	}

	for _, rel := range domain.Relations {
		rules := s.Consistency[rel]
		keys := make([]string, 0, len(rules))
		for k := range rules {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data.ConsistencyRules = append(data.ConsistencyRules, domain.ConsistencyRule{
				Relation: rel,
				Key:      k,
				Values:   rules[k],
			})
		}
	}
	for rel := range s.Consistency {
		if !knownRelation(rel) {
			return nil, fmt.Errorf("unknown consistency relation %q", rel)
		}
	}

	return data, nil
}

func knownRelation(rel domain.Relation) bool {
	for _, r := range domain.Relations {
		if r == rel {
			return true
		}
	}
	return false
}

func (t TariffSeed) entry() (domain.TariffEntry, error) {
	ht, err := domain.ParseHospitalType(t.HospitalType)
	if err != nil {
		return domain.TariffEntry{}, err
	}
	if t.Region < domain.MinRegion || t.Region > domain.MaxRegion {
		return domain.TariffEntry{}, fmt.Errorf("region %d out of range", t.Region)
	}

	prices := make(map[domain.PayerClass]decimal.Decimal, len(t.Prices))
	for class, raw := range t.Prices {
		pc := domain.PayerClass(class)
		if !pc.Valid() {
			return domain.TariffEntry{}, fmt.Errorf("payer class %d out of range", class)
		}
		p, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return domain.TariffEntry{}, fmt.Errorf("price for class %d: %w", class, err)
		}
		prices[pc] = p
	}

	return domain.TariffEntry{
		BillingCode:   codes.BillingCode(t.BillingCode),
		Description:   t.Description,
		Region:        t.Region,
		HospitalClass: codes.HospitalClass(t.HospitalClass),
		HospitalType:  ht,
		Prices:        prices,
	}, nil
}
