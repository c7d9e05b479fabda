package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"socialchat/internal/db/dbtest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, now time.Time) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := NewStore(mock)
	s.now = func() time.Time { return now }
	return s, mock
}

func TestStore_Revoke(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("inserts unexpired token", func(t *testing.T) {
		s, mock := newMockStore(t, now)
		exp := now.Add(10 * time.Minute)
		mock.ExpectExec("INSERT INTO token_revocations").
			WithArgs("tok-1", uint(5), now, exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Revoke(ctx, "tok-1", 5, exp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate token is not an error", func(t *testing.T) {
		s, mock := newMockStore(t, now)
		exp := now.Add(10 * time.Minute)
		mock.ExpectExec("ON CONFLICT \\(token\\) DO NOTHING").
			WithArgs("tok-1", uint(5), now, exp).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		require.NoError(t, s.Revoke(ctx, "tok-1", 5, exp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already expired token is skipped", func(t *testing.T) {
		s, mock := newMockStore(t, now)
		require.NoError(t, s.Revoke(ctx, "tok-old", 5, now.Add(-time.Second)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		s, mock := newMockStore(t, now)
		mock.ExpectExec("INSERT INTO token_revocations").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("db error"))

		err := s.Revoke(ctx, "tok-1", 5, now.Add(time.Minute))
		assert.ErrorContains(t, err, "revocation.Revoke")
	})
}

func TestStore_IsRevoked(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM token_revocations WHERE token = $1)")

	tests := []struct {
		name    string
		rows    *pgxmock.Rows
		err     error
		want    bool
		wantErr bool
	}{
		{"revoked", pgxmock.NewRows([]string{"exists"}).AddRow(true), nil, true, false},
		{"not revoked", pgxmock.NewRows([]string{"exists"}).AddRow(false), nil, false, false},
		{"lookup failure", nil, errors.New("conn reset"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t, time.Now())
			exp := mock.ExpectQuery(query).WithArgs("tok")
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnRows(tt.rows)
			}

			got, err := s.IsRevoked(ctx, "tok")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	s, mock := newMockStore(t, now)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_revocations WHERE expires_at < $1")).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// sqlExec 把 database/sql 适配为 DBTX，sqlite 原生支持 $N 占位符。
type sqlExec struct{ db *sql.DB }

func (e sqlExec) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	verb := strings.Fields(query)[0]
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, n)), nil
}

func (e sqlExec) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return e.db.QueryRowContext(ctx, query, args...)
}

func TestStore_RevocationLifecycle(t *testing.T) {
	gdb := dbtest.Open(t)
	raw, err := gdb.DB()
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(sqlExec{db: raw})
	s.now = func() time.Time { return now }
	ctx := context.Background()

	short := now.Add(15 * time.Minute)
	long := now.Add(time.Hour)
	require.NoError(t, s.Revoke(ctx, "tok-a", 1, short))
	require.NoError(t, s.Revoke(ctx, "tok-a", 1, short), "revoking twice is idempotent")
	require.NoError(t, s.Revoke(ctx, "tok-b", 2, long))
	require.NoError(t, s.Revoke(ctx, "tok-stale", 3, now.Add(-time.Minute)))

	revoked := func(tok string) bool {
		t.Helper()
		ok, err := s.IsRevoked(ctx, tok)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, revoked("tok-a"))
	assert.True(t, revoked("tok-b"))
	assert.False(t, revoked("tok-stale"), "an already expired token is never stored")
	assert.False(t, revoked("tok-unknown"))

	n, err := s.Sweep(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, revoked("tok-a"), "unexpired records survive a sweep")

	n, err = s.Sweep(ctx, short.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, revoked("tok-a"))
	assert.True(t, revoked("tok-b"))
}
