package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// TableSpec describes the target of a bulk write.
type TableSpec struct {
	Table        string   // target table, optionally schema-qualified ("pluginadblock.requestmatch")
	Columns      []string // all columns being written
	ConflictKeys []string // columns forming the unique constraint
}

func (s TableSpec) validate() error {
	if len(s.Columns) == 0 {
		return eris.New("db: no columns specified")
	}
	if len(s.ConflictKeys) == 0 {
		return eris.New("db: no conflict keys specified")
	}
	return nil
}

// InsertAbsent bulk-inserts rows that do not already exist, leaving
// conflicting rows untouched, and returns how many rows were newly written.
// Rows travel through a temp table via COPY, then
// INSERT ... ON CONFLICT DO NOTHING into the target.
func InsertAbsent(ctx context.Context, pool Pool, spec TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: insert absent: begin tx")
	}
	defer tx.Rollback(ctx)

	temp, err := stageRows(ctx, tx, spec, rows)
	if err != nil {
		return 0, err
	}

	colList := quoteAndJoin(spec.Columns)
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(spec.Table),
		colList,
		colList,
		pgx.Identifier{temp}.Sanitize(),
		quoteAndJoin(spec.ConflictKeys),
	)
	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: insert absent into %s", spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: insert absent: commit tx")
	}
	return tag.RowsAffected(), nil
}

// UpsertChanged bulk-writes rows with insert-then-update-if-changed
// semantics: rows absent from the target are inserted, existing rows are
// updated only when one of updateCols actually differs. Returns the number
// of inserted and updated rows separately.
func UpsertChanged(ctx context.Context, pool Pool, spec TableSpec, updateCols []string, rows [][]any) (inserted, updated int64, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, 0, err
	}
	if len(updateCols) == 0 {
		return 0, 0, eris.New("db: no update columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "db: upsert changed: begin tx")
	}
	defer tx.Rollback(ctx)

	temp, err := stageRows(ctx, tx, spec, rows)
	if err != nil {
		return 0, 0, err
	}
	tempIdent := pgx.Identifier{temp}.Sanitize()
	target := sanitizeTable(spec.Table)
	colList := quoteAndJoin(spec.Columns)

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		target, colList, colList, tempIdent, quoteAndJoin(spec.ConflictKeys),
	)
	insTag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert changed: insert into %s", spec.Table)
	}

	var setClauses, joinClauses, diffClauses []string
	for _, col := range updateCols {
		ident := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = s.%s", ident, ident))
		diffClauses = append(diffClauses, fmt.Sprintf("t.%s IS DISTINCT FROM s.%s", ident, ident))
	}
	for _, key := range spec.ConflictKeys {
		ident := pgx.Identifier{key}.Sanitize()
		joinClauses = append(joinClauses, fmt.Sprintf("t.%s = s.%s", ident, ident))
	}

	updateSQL := fmt.Sprintf(
		"UPDATE %s t SET %s FROM %s s WHERE %s AND (%s)",
		target,
		strings.Join(setClauses, ", "),
		tempIdent,
		strings.Join(joinClauses, " AND "),
		strings.Join(diffClauses, " OR "),
	)
	updTag, err := tx.Exec(ctx, updateSQL)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert changed: update %s", spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "db: upsert changed: commit tx")
	}
	return insTag.RowsAffected(), updTag.RowsAffected(), nil
}

// stageRows creates a session temp table shaped like the target and COPYs
// the rows into it. The table is dropped on commit.
func stageRows(ctx context.Context, tx pgx.Tx, spec TableSpec, rows [][]any) (string, error) {
	temp := fmt.Sprintf("_stage_%s", strings.ReplaceAll(spec.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{temp}.Sanitize(),
		sanitizeTable(spec.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return "", eris.Wrapf(err, "db: create staging table for %s", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return "", eris.Wrapf(err, "db: COPY into staging table for %s", spec.Table)
	}
	return temp, nil
}

// sanitizeTable handles schema-qualified table names like
// "pluginadblock.requestmatch".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
