package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolationPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"}

	require.False(t, IsUniqueViolation(nil, ""))
	require.True(t, IsUniqueViolation(fmt.Errorf("create user: %w", pgErr), ""))
	require.True(t, IsUniqueViolation(pgErr, "idx_users_email"))
	require.False(t, IsUniqueViolation(pgErr, "idx_products_name"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email"), ""))
	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
}
