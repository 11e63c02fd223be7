package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestInsertAbsent_EmptyRows(t *testing.T) {
	n, err := InsertAbsent(context.Background(), nil, TableSpec{
		Table:        "request_normalized",
		Columns:      []string{"request_id", "normalized_request_id"},
		ConflictKeys: []string{"request_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestInsertAbsent_SpecValidation(t *testing.T) {
	_, err := InsertAbsent(context.Background(), nil, TableSpec{
		Table:        "request_normalized",
		ConflictKeys: []string{"request_id"},
	}, [][]any{{1, 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = InsertAbsent(context.Background(), nil, TableSpec{
		Table:   "request_normalized",
		Columns: []string{"request_id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestInsertAbsent_ReportsNewRowsOnly(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_request_normalized"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_request_normalized"}, []string{"request_id", "normalized_request_id"}).
		WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "request_normalized" .+ ON CONFLICT \("request_id"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := InsertAbsent(context.Background(), mock, TableSpec{
		Table:        "request_normalized",
		Columns:      []string{"request_id", "normalized_request_id"},
		ConflictKeys: []string{"request_id"},
	}, [][]any{{int64(1), int64(1)}, {int64(2), int64(1)}, {int64(3), int64(3)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "two of three rows already existed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChanged_SeparatesInsertAndUpdateCounts(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_pluginadblock_requestmatch"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_pluginadblock_requestmatch"}, []string{"request_id", "list_id", "match"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "pluginadblock"\."requestmatch" .+ DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE "pluginadblock"\."requestmatch" t SET "match" = s\."match" .+ IS DISTINCT FROM`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	inserted, updated, err := UpsertChanged(context.Background(), mock, TableSpec{
		Table:        "pluginadblock.requestmatch",
		Columns:      []string{"request_id", "list_id", "match"},
		ConflictKeys: []string{"request_id", "list_id"},
	}, []string{"match"}, [][]any{{int64(1), 1, true}, {int64(2), 1, false}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.Equal(t, int64(1), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChanged_RequiresUpdateColumns(t *testing.T) {
	_, _, err := UpsertChanged(context.Background(), nil, TableSpec{
		Table:        "pluginadblock.requestmatch",
		Columns:      []string{"request_id", "list_id", "match"},
		ConflictKeys: []string{"request_id", "list_id"},
	}, nil, [][]any{{int64(1), 1, true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no update columns specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"request_normalized", `"request_normalized"`},
		{"pluginadblock.requestmatch", `"pluginadblock"."requestmatch"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"request_id", "source", "model"`, quoteAndJoin([]string{"request_id", "source", "model"}))
}
