package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mobiscope/traffic-cli/internal/db"
	"github.com/mobiscope/traffic-cli/internal/model"
)

// PostgresStore implements Store against the experiment database using
// pgxpool. Every query is parameterized; identifiers are compile-time
// constants.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	experimentRequestsQuery = `SELECT r.id, r.scheme, r.host, r.path, COALESCE(r.content, '')
FROM interfaceanalysis ia
INNER JOIN trafficcollection tc ON tc.analysis = ia.id
INNER JOIN request r ON r.run = tc.id
WHERE ia.experiment = $1
  AND r.error IS NULL
  AND ia.success IS TRUE
ORDER BY r.id`

	experimentMatchedRequestsQuery = `SELECT DISTINCT r.id, r.scheme, r.host, r.path, COALESCE(r.content, '')
FROM interfaceanalysis ia
INNER JOIN trafficcollection tc ON tc.analysis = ia.id
INNER JOIN request r ON r.run = tc.id
INNER JOIN pluginadblock.requestmatch rm ON rm.request_id = r.id
WHERE ia.experiment = $1
  AND r.error IS NULL
  AND ia.success IS TRUE
  AND rm.match IS TRUE
ORDER BY r.id`

	experimentAppRequestsQuery = `SELECT DISTINCT r.id, r.scheme, r.host, r.path, COALESCE(r.content, '')
FROM interfaceanalysis ia
INNER JOIN trafficcollection tc ON tc.analysis = ia.id
INNER JOIN request r ON r.run = tc.id
WHERE ia.experiment = $1
  AND r.error IS NULL
  AND ia.success IS TRUE
  AND ia.app_id = ANY($2)
ORDER BY r.id`

	experimentRequestsForMatchingQuery = `SELECT r.id, r.scheme, r.host, r.path
FROM interfaceanalysis ia
INNER JOIN trafficcollection tc ON tc.analysis = ia.id
INNER JOIN request r ON r.run = tc.id
WHERE ia.experiment = $1
ORDER BY r.id`

	analyzedRequestIDsQuery = `SELECT request_id
FROM pluginadblock.request_llm_analyzed
WHERE source = $1 AND model = $2`

	markAnalyzedStmt = `INSERT INTO pluginadblock.request_llm_analyzed (request_id, source, model)
VALUES ($1, $2, $3)
ON CONFLICT (request_id, source, model) DO NOTHING`

	filterListIDQuery    = `SELECT id FROM pluginadblock.filterlist WHERE name = $1`
	insertFilterListStmt = `INSERT INTO pluginadblock.filterlist (name) VALUES ($1) RETURNING id`
)

// migration creates the analysis-side schema objects. The experiment core
// tables (interfaceanalysis, trafficcollection, request) belong to the
// collection system and are never created here.
const migration = `
CREATE SCHEMA IF NOT EXISTS pluginadblock;

CREATE TABLE IF NOT EXISTS pluginadblock.filterlist (
	id   INTEGER NOT NULL PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
	name VARCHAR NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS pluginadblock.requestmatch (
	request_id INTEGER NOT NULL REFERENCES public.request(id)
		ON UPDATE CASCADE ON DELETE CASCADE,
	list_id    INTEGER NOT NULL REFERENCES pluginadblock.filterlist(id)
		ON UPDATE CASCADE ON DELETE CASCADE,
	match      BOOLEAN NOT NULL,
	PRIMARY KEY (request_id, list_id)
);

CREATE TABLE IF NOT EXISTS pluginadblock.request_llm_analyzed (
	request_id INTEGER NOT NULL REFERENCES public.request(id)
		ON UPDATE CASCADE ON DELETE CASCADE,
	source     VARCHAR NOT NULL,
	model      VARCHAR NOT NULL,
	PRIMARY KEY (request_id, source, model)
);

CREATE TABLE IF NOT EXISTS request_normalized (
	request_id            INTEGER NOT NULL PRIMARY KEY REFERENCES public.request(id)
		ON UPDATE CASCADE ON DELETE CASCADE,
	normalized_request_id INTEGER NOT NULL REFERENCES public.request(id)
		ON UPDATE CASCADE ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS private_data (
	request_id INTEGER NOT NULL REFERENCES public.request(id)
		ON UPDATE CASCADE ON DELETE CASCADE,
	category   VARCHAR NOT NULL,
	key        VARCHAR NOT NULL,
	value      VARCHAR NOT NULL,
	source     VARCHAR NOT NULL,
	model      VARCHAR NOT NULL,
	times      INTEGER NOT NULL DEFAULT 1,
	UNIQUE (request_id, category, key, value, source, model)
);

CREATE INDEX IF NOT EXISTS idx_private_data_request ON private_data(request_id);
CREATE INDEX IF NOT EXISTS idx_request_normalized_normal ON request_normalized(normalized_request_id);
`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Migrate applies the analysis-side schema, idempotently.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ExperimentRequests(ctx context.Context, experimentID int64) ([]*model.Request, error) {
	return s.queryRequests(ctx, true, experimentRequestsQuery, experimentID)
}

func (s *PostgresStore) ExperimentMatchedRequests(ctx context.Context, experimentID int64) ([]*model.Request, error) {
	return s.queryRequests(ctx, true, experimentMatchedRequestsQuery, experimentID)
}

func (s *PostgresStore) ExperimentAppRequests(ctx context.Context, experimentID int64, appIDs []string) ([]*model.Request, error) {
	return s.queryRequests(ctx, true, experimentAppRequestsQuery, experimentID, appIDs)
}

func (s *PostgresStore) ExperimentRequestsForMatching(ctx context.Context, experimentID int64) ([]*model.Request, error) {
	return s.queryRequests(ctx, false, experimentRequestsForMatchingQuery, experimentID)
}

func (s *PostgresStore) queryRequests(ctx context.Context, withContent bool, query string, args ...any) ([]*model.Request, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query requests")
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		r := &model.Request{}
		if withContent {
			err = rows.Scan(&r.ID, &r.Scheme, &r.Host, &r.Path, &r.Content)
		} else {
			err = rows.Scan(&r.ID, &r.Scheme, &r.Host, &r.Path)
		}
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan request")
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate requests")
	}
	return requests, nil
}

func (s *PostgresStore) InsertNormalizedRequests(ctx context.Context, links []model.NormalizedRequest) (int64, error) {
	rows := make([][]any, len(links))
	for i, l := range links {
		rows[i] = []any{l.RequestID, l.NormalizedID}
	}

	n, err := db.InsertAbsent(ctx, s.pool, db.TableSpec{
		Table:        "request_normalized",
		Columns:      []string{"request_id", "normalized_request_id"},
		ConflictKeys: []string{"request_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert normalized requests")
	}
	return n, nil
}

func (s *PostgresStore) AnalyzedRequestIDs(ctx context.Context, source, modelID string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, analyzedRequestIDsQuery, source, modelID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query analyzed request ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analyzed request id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate analyzed request ids")
	}
	return ids, nil
}

func (s *PostgresStore) InsertPrivateData(ctx context.Context, requestID int64, data []model.PrivateData) (int64, error) {
	rows := make([][]any, len(data))
	for i, d := range data {
		rows[i] = []any{requestID, d.Category, d.Key, d.Value, d.Source, d.Model, d.Count}
	}

	n, err := db.InsertAbsent(ctx, s.pool, db.TableSpec{
		Table:        "private_data",
		Columns:      []string{"request_id", "category", "key", "value", "source", "model", "times"},
		ConflictKeys: []string{"request_id", "category", "key", "value", "source", "model"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert private data")
	}
	return n, nil
}

func (s *PostgresStore) MarkRequestAnalyzed(ctx context.Context, requestID int64, source, modelID string) error {
	_, err := s.pool.Exec(ctx, markAnalyzedStmt, requestID, source, modelID)
	return eris.Wrap(err, "postgres: mark request analyzed")
}

// EnsureFilterList returns the id of the named filter list, creating the row
// on first use.
func (s *PostgresStore) EnsureFilterList(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, filterListIDQuery, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, eris.Wrap(err, "postgres: look up filter list")
	}

	if err := s.pool.QueryRow(ctx, insertFilterListStmt, name).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "postgres: create filter list")
	}
	return id, nil
}

func (s *PostgresStore) SaveRequestMatches(ctx context.Context, listID int64, requests []*model.Request) (inserted, updated int64, err error) {
	rows := make([][]any, 0, len(requests))
	for _, r := range requests {
		if r.Match == model.MatchUnknown {
			continue
		}
		rows = append(rows, []any{r.ID, listID, r.Match == model.MatchBlocked})
	}

	inserted, updated, err = db.UpsertChanged(ctx, s.pool, db.TableSpec{
		Table:        "pluginadblock.requestmatch",
		Columns:      []string{"request_id", "list_id", "match"},
		ConflictKeys: []string{"request_id", "list_id"},
	}, []string{"match"}, rows)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: save request matches")
	}
	return inserted, updated, nil
}
