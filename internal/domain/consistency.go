package domain

// Verdict is the outcome of one consistency comparison.
type Verdict string

const (
	VerdictCompliant    Verdict = "Sesuai"
	VerdictPartial      Verdict = "Sebagian Sesuai"
	VerdictNonCompliant Verdict = "Tidak Sesuai"
)

// Value is the verdict's contribution to the aggregate score.
func (v Verdict) Value() float64 {
	switch v {
	case VerdictCompliant:
		return 1.0
	case VerdictPartial:
		return 0.5
	}
	return 0
}

// Level is the aggregate consistency level of a claim.
type Level string

const (
	LevelHigh   Level = "Tinggi"
	LevelMedium Level = "Sedang"
	LevelLow    Level = "Rendah"
)

// RelationResult is the verdict for one relation.
type RelationResult struct {
	Relation Relation `json:"relation"`
	Verdict  Verdict  `json:"verdict"`
	// Score is matched/actual: the share of claimed items that the rule
	// expects.
	Score     float64  `json:"score"`
	Matched   int      `json:"matched"`
	Actual    int      `json:"actual"`
	Expected  []string `json:"expected,omitempty"`
	Unmatched []string `json:"unmatched,omitempty"`
	RuleFound bool     `json:"ruleFound"`
	Note      string   `json:"note,omitempty"`
}

// ConsistencyResult is the full clinical-plausibility verdict.
type ConsistencyResult struct {
	DiagnosisProcedure RelationResult `json:"diagnosisProcedure"`
	DiagnosisDrug      RelationResult `json:"diagnosisDrug"`
	ProcedureDrug      RelationResult `json:"procedureDrug"`
	// AggregateScore is the sum of verdict values, 0..3.
	AggregateScore float64 `json:"aggregateScore"`
	Level          Level   `json:"level"`
}

// Relations returns the three results in reporting order.
func (c *ConsistencyResult) Relations() []RelationResult {
	return []RelationResult{c.DiagnosisProcedure, c.DiagnosisDrug, c.ProcedureDrug}
}

// VerdictBand holds the CEL conditions that map a relation's match
// statistics to a verdict. Compliant is checked first, then Partial;
// anything else is non-compliant.
type VerdictBand struct {
	Compliant string `json:"compliant" yaml:"compliant"`
	Partial   string `json:"partial" yaml:"partial"`
}
