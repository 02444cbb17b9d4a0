package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/scoring"
)

// FactsRepo resolves firmographic and contact facts for scoring from the
// pulse_accounts and pulse_contacts tables.
type FactsRepo struct{ db *sql.DB }

// NewFactsRepo creates a Postgres-backed facts repository.
func NewFactsRepo(db *sql.DB) *FactsRepo { return &FactsRepo{db: db} }

// AccountFacts loads company size and counts senior-titled contacts. An
// unknown account yields zero-value facts rather than an error; scoring
// degrades to defaults for missing inputs.
func (r *FactsRepo) AccountFacts(ctx context.Context, orgID, accountID string) (domain.AccountFacts, error) {
	var facts domain.AccountFacts

	var size *string
	err := r.db.QueryRowContext(ctx, `
		SELECT company_size FROM pulse_accounts
		WHERE organization_id = $1 AND id = $2
	`, orgID, accountID).Scan(&size)
	if err != nil && err != sql.ErrNoRows {
		return facts, fmt.Errorf("query account: %w", err)
	}
	if size != nil {
		cs := domain.CompanySize(*size)
		facts.CompanySize = &cs
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT title FROM pulse_contacts
		WHERE organization_id = $1 AND account_id = $2 AND title IS NOT NULL
	`, orgID, accountID)
	if err != nil {
		return facts, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return facts, fmt.Errorf("scan contact title: %w", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return facts, err
	}
	facts.SeniorContacts = scoring.CountSeniorTitles(titles)
	return facts, nil
}
