package repository

// Schema definitions for the claim engine database.
// Compatible with both SQLite and PostgreSQL.

const schemaTariffs = `
CREATE TABLE IF NOT EXISTS tariffs (
    billing_code TEXT NOT NULL,
    description TEXT,
    region INTEGER NOT NULL,
    hospital_class TEXT NOT NULL,
    hospital_type TEXT NOT NULL,
    price_class1 TEXT,
    price_class2 TEXT,
    price_class3 TEXT,
    PRIMARY KEY (billing_code, region, hospital_class, hospital_type)
);
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS empirical_patterns (
    service_type TEXT NOT NULL,
    primary_diagnosis TEXT NOT NULL,
    diagnosis_category TEXT NOT NULL,
    main_procedure TEXT NOT NULL,
    signature TEXT NOT NULL,
    billing_code TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (service_type, primary_diagnosis, main_procedure, signature, billing_code)
);

CREATE INDEX IF NOT EXISTS idx_patterns_category ON empirical_patterns(service_type, diagnosis_category);
`

const schemaGroupRules = `
CREATE TABLE IF NOT EXISTS diagnosis_group_rules (
    range_start TEXT NOT NULL,
    range_end TEXT NOT NULL,
    category TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    description TEXT,
    PRIMARY KEY (range_start, range_end, category)
);
`

const schemaProcedures = `
CREATE TABLE IF NOT EXISTS procedures (
    code TEXT PRIMARY KEY,
    chapter_range TEXT,
    is_major INTEGER NOT NULL DEFAULT 0,
    body_system TEXT,
    description TEXT
);
`

const schemaConsistencyRules = `
CREATE TABLE IF NOT EXISTS consistency_rules (
    relation TEXT NOT NULL,
    rule_key TEXT NOT NULL,
    rule_values TEXT NOT NULL,
    PRIMARY KEY (relation, rule_key)
);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    billing_code TEXT NOT NULL,
    strategy TEXT NOT NULL,
    confidence REAL NOT NULL,
    consistency_level TEXT,
    flags TEXT,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_claim ON analyses(claim_id);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaTariffs,
		schemaPatterns,
		schemaGroupRules,
		schemaProcedures,
		schemaConsistencyRules,
		schemaAnalyses,
	}
}
