package models

// All lists every persisted model, in dependency order. Used by SQLite
// auto-migration in local dev and tests; Postgres schemas come from goose.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Contribution{},
		&ContributionDetail{},
		&Compensation{},
		&CompensationDetail{},
	}
}
