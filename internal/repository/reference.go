package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

const patternColumns = `service_type, primary_diagnosis, main_procedure, signature, billing_code, frequency`

// PatternsByDiagnosis returns patterns for a service type and diagnosis,
// most frequent first.
func (r *SQLRepository) PatternsByDiagnosis(ctx context.Context, serviceType domain.ServiceType, diagnosis string) ([]domain.EmpiricalPattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM empirical_patterns
		WHERE service_type = ? AND primary_diagnosis = ?
		ORDER BY frequency DESC, billing_code
	`
	patterns, err := r.queryPatterns(ctx, query, string(serviceType), codes.Diagnosis(diagnosis))
	if err != nil {
		return nil, unavailable("patterns by diagnosis", err)
	}
	return patterns, nil
}

// PatternsByCategory returns patterns whose diagnosis shares the category.
func (r *SQLRepository) PatternsByCategory(ctx context.Context, serviceType domain.ServiceType, category string) ([]domain.EmpiricalPattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM empirical_patterns
		WHERE service_type = ? AND diagnosis_category = ?
		ORDER BY frequency DESC, billing_code
	`
	patterns, err := r.queryPatterns(ctx, query, string(serviceType), codes.Category(category))
	if err != nil {
		return nil, unavailable("patterns by category", err)
	}
	return patterns, nil
}

func (r *SQLRepository) queryPatterns(ctx context.Context, query string, args ...any) ([]domain.EmpiricalPattern, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []domain.EmpiricalPattern
	for rows.Next() {
		var p domain.EmpiricalPattern
		var serviceType, signature string
		if err := rows.Scan(
			&serviceType, &p.PrimaryDiagnosis, &p.MainProcedure,
			&signature, &p.BillingCode, &p.Frequency,
		); err != nil {
			return nil, err
		}
		p.ServiceType = domain.ServiceType(serviceType)
		p.Procedures = codes.SplitSignature(signature)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// Procedure returns nil, nil for unknown codes.
func (r *SQLRepository) Procedure(ctx context.Context, code string) (*domain.ProcedureInfo, error) {
	query := `
		SELECT code, chapter_range, is_major, body_system, description
		FROM procedures
		WHERE code = ?
	`

	var p domain.ProcedureInfo
	var chapter, system, desc sql.NullString
	var major int

	err := r.db.QueryRowContext(ctx, r.rebind(query), codes.Procedure(code)).Scan(
		&p.Code, &chapter, &major, &system, &desc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("procedure", err)
	}

	p.ChapterRange = chapter.String
	p.IsMajor = major == 1
	p.BodySystem = system.String
	p.Description = desc.String
	return &p, nil
}

func (r *SQLRepository) listProcedures(ctx context.Context) ([]domain.ProcedureInfo, error) {
	query := `
		SELECT code, chapter_range, is_major, body_system, description
		FROM procedures
		ORDER BY code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProcedureInfo
	for rows.Next() {
		var p domain.ProcedureInfo
		var chapter, system, desc sql.NullString
		var major int
		if err := rows.Scan(&p.Code, &chapter, &major, &system, &desc); err != nil {
			return nil, err
		}
		p.ChapterRange = chapter.String
		p.IsMajor = major == 1
		p.BodySystem = system.String
		p.Description = desc.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// GroupRules returns every diagnosis group rule by priority.
func (r *SQLRepository) GroupRules(ctx context.Context) ([]domain.DiagnosisGroupRule, error) {
	query := `
		SELECT range_start, range_end, category, priority, description
		FROM diagnosis_group_rules
		ORDER BY priority, range_start, category
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("group rules", err)
	}
	defer rows.Close()

	var rules []domain.DiagnosisGroupRule
	for rows.Next() {
		var g domain.DiagnosisGroupRule
		var desc sql.NullString
		if err := rows.Scan(&g.RangeStart, &g.RangeEnd, &g.Category, &g.Priority, &desc); err != nil {
			return nil, unavailable("group rules", err)
		}
		g.Description = desc.String
		rules = append(rules, g)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("group rules", err)
	}
	return rules, nil
}

const tariffColumns = `billing_code, description, region, hospital_class, hospital_type, price_class1, price_class2, price_class3`

// Tariff returns the row for the exact 4-tuple or ErrTariffNotFound.
func (r *SQLRepository) Tariff(ctx context.Context, key domain.TariffKey) (*domain.TariffEntry, error) {
	query := `
		SELECT ` + tariffColumns + `
		FROM tariffs
		WHERE billing_code = ? AND region = ? AND hospital_class = ? AND hospital_type = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query),
		key.BillingCode, key.Region, key.HospitalClass, string(key.HospitalType),
	)
	t, err := scanTariff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTariffNotFound, key)
	}
	if err != nil {
		return nil, unavailable("tariff", err)
	}
	return t, nil
}

// ListTariffs returns every tariff ordered by key.
func (r *SQLRepository) ListTariffs(ctx context.Context) ([]domain.TariffEntry, error) {
	query := `
		SELECT ` + tariffColumns + `
		FROM tariffs
		ORDER BY billing_code, region, hospital_class, hospital_type
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("list tariffs", err)
	}
	defer rows.Close()

	var out []domain.TariffEntry
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, unavailable("list tariffs", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tariffs", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTariff(s scanner) (*domain.TariffEntry, error) {
	var t domain.TariffEntry
	var desc sql.NullString
	var hospitalType string
	var p1, p2, p3 decimal.NullDecimal

	if err := s.Scan(
		&t.BillingCode, &desc, &t.Region, &t.HospitalClass, &hospitalType,
		&p1, &p2, &p3,
	); err != nil {
		return nil, err
	}

	t.Description = desc.String
	t.HospitalType = domain.HospitalType(hospitalType)
	t.Prices = make(map[domain.PayerClass]decimal.Decimal, 3)
	for class, p := range map[domain.PayerClass]decimal.NullDecimal{
		domain.PayerClass1: p1,
		domain.PayerClass2: p2,
		domain.PayerClass3: p3,
	} {
		if p.Valid {
			t.Prices[class] = p.Decimal
		}
	}
	return &t, nil
}

// ConsistencyRules returns the rule map for one relation.
func (r *SQLRepository) ConsistencyRules(ctx context.Context, relation domain.Relation) (map[string][]string, error) {
	query := `
		SELECT rule_key, rule_values
		FROM consistency_rules
		WHERE relation = ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(relation))
	if err != nil {
		return nil, unavailable("consistency rules", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, unavailable("consistency rules", err)
		}
		var values []string
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("failed to parse consistency rule %s/%s: %w", relation, key, err)
		}
		out[key] = values
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("consistency rules", err)
	}
	return out, nil
}

// LoadReferenceData reads every reference table.
func (r *SQLRepository) LoadReferenceData(ctx context.Context) (*domain.ReferenceData, error) {
	data := &domain.ReferenceData{}

	tariffs, err := r.ListTariffs(ctx)
	if err != nil {
		return nil, err
	}
	data.Tariffs = tariffs

	patterns, err := r.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM empirical_patterns
		ORDER BY service_type, primary_diagnosis, frequency DESC, billing_code
	`)
	if err != nil {
		return nil, unavailable("load patterns", err)
	}
	data.Patterns = patterns

	if data.GroupRules, err = r.GroupRules(ctx); err != nil {
		return nil, err
	}

	if data.Procedures, err = r.listProcedures(ctx); err != nil {
		return nil, unavailable("load procedures", err)
	}

	for _, rel := range domain.Relations {
		rules, err := r.ConsistencyRules(ctx, rel)
		if err != nil {
			return nil, err
		}
		for key, values := range rules {
			data.ConsistencyRules = append(data.ConsistencyRules, domain.ConsistencyRule{
				Relation: rel,
				Key:      key,
				Values:   values,
			})
		}
	}

	return data, nil
}

// SaveReferenceData upserts reference rows in one transaction. Codes are
// normalized before they are written so lookups can match on equality.
func (r *SQLRepository) SaveReferenceData(ctx context.Context, data *domain.ReferenceData) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	for i := range data.Tariffs {
		if err := r.upsertTariff(ctx, tx, &data.Tariffs[i]); err != nil {
			return err
		}
	}
	for i := range data.Patterns {
		if err := r.upsertPattern(ctx, tx, &data.Patterns[i]); err != nil {
			return err
		}
	}
	for i := range data.GroupRules {
		if err := r.upsertGroupRule(ctx, tx, &data.GroupRules[i]); err != nil {
			return err
		}
	}
	for i := range data.Procedures {
		if err := r.upsertProcedure(ctx, tx, &data.Procedures[i]); err != nil {
			return err
		}
	}
	for i := range data.ConsistencyRules {
		if err := r.upsertConsistencyRule(ctx, tx, &data.ConsistencyRules[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (r *SQLRepository) upsertTariff(ctx context.Context, tx *sql.Tx, t *domain.TariffEntry) error {
	code, class := codes.BillingCode(t.BillingCode), codes.HospitalClass(t.HospitalClass)
	if code == "" || !t.HospitalType.Valid() {
		return fmt.Errorf("%w: tariff %s", ErrInvalidInput, t.Key())
	}

	query := `
		INSERT INTO tariffs (` + tariffColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(billing_code, region, hospital_class, hospital_type) DO UPDATE SET
			description = excluded.description,
			price_class1 = excluded.price_class1,
			price_class2 = excluded.price_class2,
			price_class3 = excluded.price_class3
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		code, t.Description, t.Region, class, string(t.HospitalType),
		price(t, domain.PayerClass1), price(t, domain.PayerClass2), price(t, domain.PayerClass3),
	)
	if err != nil {
		return unavailable("save tariff", err)
	}
	return nil
}

func price(t *domain.TariffEntry, class domain.PayerClass) decimal.NullDecimal {
	p, ok := t.Prices[class]
	return decimal.NullDecimal{Decimal: p, Valid: ok}
}

func (r *SQLRepository) upsertPattern(ctx context.Context, tx *sql.Tx, p *domain.EmpiricalPattern) error {
	if p.Frequency < 1 || p.BillingCode == "" || p.PrimaryDiagnosis == "" {
		return fmt.Errorf("%w: pattern %s/%s", ErrInvalidInput, p.PrimaryDiagnosis, p.BillingCode)
	}

	query := `
		INSERT INTO empirical_patterns (
			service_type, primary_diagnosis, diagnosis_category, main_procedure, signature, billing_code, frequency
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_type, primary_diagnosis, main_procedure, signature, billing_code) DO UPDATE SET
			frequency = excluded.frequency
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		string(p.ServiceType),
		codes.Diagnosis(p.PrimaryDiagnosis),
		codes.Category(p.PrimaryDiagnosis),
		codes.Procedure(p.Main()),
		codes.SignatureKey(p.Procedures),
		p.BillingCode,
		p.Frequency,
	)
	if err != nil {
		return unavailable("save pattern", err)
	}
	return nil
}

func (r *SQLRepository) upsertGroupRule(ctx context.Context, tx *sql.Tx, g *domain.DiagnosisGroupRule) error {
	query := `
		INSERT INTO diagnosis_group_rules (range_start, range_end, category, priority, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(range_start, range_end, category) DO UPDATE SET
			priority = excluded.priority,
			description = excluded.description
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		codes.Diagnosis(g.RangeStart), codes.Diagnosis(g.RangeEnd), g.Category, g.Priority, g.Description,
	)
	if err != nil {
		return unavailable("save group rule", err)
	}
	return nil
}

func (r *SQLRepository) upsertProcedure(ctx context.Context, tx *sql.Tx, p *domain.ProcedureInfo) error {
	major := 0
	if p.IsMajor {
		major = 1
	}

	query := `
		INSERT INTO procedures (code, chapter_range, is_major, body_system, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			chapter_range = excluded.chapter_range,
			is_major = excluded.is_major,
			body_system = excluded.body_system,
			description = excluded.description
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		codes.Procedure(p.Code), p.ChapterRange, major, p.BodySystem, p.Description,
	)
	if err != nil {
		return unavailable("save procedure", err)
	}
	return nil
}

func (r *SQLRepository) upsertConsistencyRule(ctx context.Context, tx *sql.Tx, c *domain.ConsistencyRule) error {
	values, err := json.Marshal(c.Values)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO consistency_rules (relation, rule_key, rule_values)
		VALUES (?, ?, ?)
		ON CONFLICT(relation, rule_key) DO UPDATE SET
			rule_values = excluded.rule_values
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query), string(c.Relation), c.Key, string(values)); err != nil {
		return unavailable("save consistency rule", err)
	}
	return nil
}
