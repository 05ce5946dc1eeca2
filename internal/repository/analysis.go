package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// SaveAnalysis stores a claim analysis.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.ClaimAnalysis) error {
	if a.ID == "" || a.Code == nil {
		return fmt.Errorf("%w: analysis id and code are required", ErrInvalidInput)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	var level string
	if a.Consistency != nil {
		level = string(a.Consistency.Level)
	}

	query := `
		INSERT INTO analyses (
			id, claim_id, billing_code, strategy, confidence,
			consistency_level, flags, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.ClaimID, a.Code.BillingCode, string(a.Code.Strategy), a.Code.Confidence,
		level, strings.Join(a.Flags, ","), string(payload), a.Timestamp,
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.ClaimAnalysis, error) {
	query := `
		SELECT payload
		FROM analyses
		WHERE id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a domain.ClaimAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis %s: %w", id, err)
	}
	return &a, nil
}
