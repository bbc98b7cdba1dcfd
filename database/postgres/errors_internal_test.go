package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sagarc03/burndrop"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "id violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "burndrop_shares_pkey"}, want: burndrop.ErrConflict},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: burndrop.ErrStoreUnavailable},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: burndrop.ErrStoreUnavailable},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: burndrop.ErrStoreUnavailable},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: burndrop.ErrStoreUnavailable},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, want: burndrop.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "driver error stays reachable")
		})
	}

	t.Run("check violation passes through", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23514"}
		got := classifyError(err)
		assert.NotErrorIs(t, got, burndrop.ErrConflict)
		assert.NotErrorIs(t, got, burndrop.ErrStoreUnavailable)
	})

	t.Run("other unique violation is not a conflict", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "burndrop_shares_blob_path_key"}
		got := classifyError(err)
		assert.NotErrorIs(t, got, burndrop.ErrConflict)
		assert.NotErrorIs(t, got, burndrop.ErrStoreUnavailable)
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyError(nil))
	})
}
