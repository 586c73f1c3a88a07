package snowflake

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"medallion/internal/observability"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
)

const defaultBatchSize = 500

// Store publishes snapshots into Snowflake. Every table carries a
// SNAPSHOT_ID column and CURRENT_ views filter on the pointer row, so a
// publish becomes visible when its pointer MERGE commits.
type Store struct {
	svc       *Service
	batchSize int
	logger    *observability.Logger
}

// NewStore creates a store over a connected service
func NewStore(svc *Service, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{
		svc:       svc,
		batchSize: batchSize,
		logger:    observability.GetDefaultLogger().WithField("component", "snowflake"),
	}
}

// Open connects and makes sure the medallion tables exist
func Open(ctx context.Context, cfg Config, batchSize int) (*Store, error) {
	svc := NewService(cfg)
	if err := svc.Connect(ctx); err != nil {
		return nil, err
	}
	store := NewStore(svc, batchSize)
	if err := store.EnsureSchema(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return store, nil
}

// WithLogger sets the logger used by the store
func (s *Store) WithLogger(logger *observability.Logger) *Store {
	s.logger = logger
	return s
}

// Statements returns the DDL EnsureSchema runs, in order
func Statements() []string {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (ID VARCHAR NOT NULL PRIMARY KEY, RUN_ID VARCHAR, AS_OF TIMESTAMP_NTZ, CREATED_AT TIMESTAMP_NTZ, CHECKSUM VARCHAR, SOURCE_REVISION VARCHAR, ROW_COUNT NUMBER)", snapshotsTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (NAME VARCHAR NOT NULL PRIMARY KEY, SNAPSHOT_ID VARCHAR, UPDATED_AT TIMESTAMP_NTZ)", pointerTable),
	}
	for _, t := range tables {
		stmts = append(stmts, t.createSQL())
	}
	for _, t := range tables {
		stmts = append(stmts, t.viewSQL())
	}
	return stmts
}

// EnsureSchema creates the tables and views if they are missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range Statements() {
		if _, err := s.svc.DB().ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(sqlError("Failed to create medallion schema", stmt, err),
				errors.ErrCodeMigration, "schema setup failed").
				WithContext("statement_index", i+1)
		}
	}
	s.logger.Debug("medallion schema ready")
	return nil
}

// Publish writes all rows of the snapshot and moves the pointer in one
// transaction
func (s *Store) Publish(ctx context.Context, snapshot *warehouse.Snapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "snapshot id is required")
	}
	if snapshot.Silver == nil || snapshot.Gold == nil {
		return errors.New(errors.ErrCodeInvalidInput, "snapshot has no silver or gold rows").
			WithContext("snapshot_id", snapshot.ID)
	}

	err := s.svc.InTransaction(ctx, func(tx *sql.Tx) error {
		exists, err := snapshotExists(ctx, tx, snapshot.ID)
		if err != nil {
			return err
		}
		if exists {
			return errors.New(errors.ErrCodePublishFailed, "snapshot already published").
				WithContext("snapshot_id", snapshot.ID)
		}

		insert := fmt.Sprintf("INSERT INTO %s (ID, RUN_ID, AS_OF, CREATED_AT, CHECKSUM, SOURCE_REVISION, ROW_COUNT) VALUES (?, ?, ?, ?, ?, ?, ?)", snapshotsTable)
		if _, err := tx.ExecContext(ctx, insert, snapshot.ID, snapshot.RunID, snapshot.AsOf,
			snapshot.CreatedAt, snapshot.Checksum, snapshot.SourceRevision, snapshot.Rows()); err != nil {
			return sqlError("Failed to record snapshot", insert, err)
		}

		for _, t := range tables {
			if err := s.insertRows(ctx, tx, t, snapshot); err != nil {
				return err
			}
		}

		return setPointer(ctx, tx, snapshot.ID)
	})
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrCodePublishFailed {
			return err
		}
		return errors.Wrap(err, errors.ErrCodePublishFailed, "failed to publish snapshot").
			WithContext("snapshot_id", snapshot.ID)
	}

	s.logger.WithField("snapshot_id", snapshot.ID).
		WithField("rows", snapshot.Rows()).
		Info("snapshot published")
	return nil
}

func (s *Store) insertRows(ctx context.Context, tx *sql.Tx, t table, snapshot *warehouse.Snapshot) error {
	rows := t.rows(snapshot)
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		args := make([]interface{}, 0, len(chunk)*(len(t.columns)+1))
		for _, row := range chunk {
			args = append(args, snapshot.ID)
			args = append(args, row...)
		}

		query := t.insertSQL(len(chunk))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return sqlError(fmt.Sprintf("Failed to insert into %s", t.name), query, err).
				WithContext("table", t.name).
				WithContext("batch_start", start)
		}
	}
	return nil
}

// Current returns the snapshot the pointer names
func (s *Store) Current(ctx context.Context) (*warehouse.SnapshotInfo, error) {
	query := fmt.Sprintf(
		"SELECT s.ID, s.RUN_ID, s.AS_OF, s.CREATED_AT, s.CHECKSUM, s.SOURCE_REVISION, s.ROW_COUNT FROM %s s JOIN %s c ON c.SNAPSHOT_ID = s.ID WHERE c.NAME = ?",
		snapshotsTable, pointerTable)

	var info warehouse.SnapshotInfo
	var revision sql.NullString
	err := s.svc.DB().QueryRowContext(ctx, query, pointerName).Scan(
		&info.ID, &info.RunID, &info.AsOf, &info.CreatedAt, &info.Checksum, &revision, &info.Rows)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeNoSnapshot, "no snapshot has been published")
	}
	if err != nil {
		return nil, sqlError("Failed to read current snapshot", query, err)
	}

	info.SourceRevision = revision.String
	info.Current = true
	return &info, nil
}

// List returns every snapshot, newest first
func (s *Store) List(ctx context.Context) ([]warehouse.SnapshotInfo, error) {
	query := fmt.Sprintf(
		"SELECT s.ID, s.RUN_ID, s.AS_OF, s.CREATED_AT, s.CHECKSUM, s.SOURCE_REVISION, s.ROW_COUNT, c.SNAPSHOT_ID IS NOT NULL FROM %s s LEFT JOIN %s c ON c.SNAPSHOT_ID = s.ID AND c.NAME = ? ORDER BY s.CREATED_AT DESC, s.ID DESC",
		snapshotsTable, pointerTable)

	rows, err := s.svc.DB().QueryContext(ctx, query, pointerName)
	if err != nil {
		return nil, sqlError("Failed to list snapshots", query, err)
	}
	defer rows.Close()

	var out []warehouse.SnapshotInfo
	for rows.Next() {
		var info warehouse.SnapshotInfo
		var revision sql.NullString
		if err := rows.Scan(&info.ID, &info.RunID, &info.AsOf, &info.CreatedAt,
			&info.Checksum, &revision, &info.Rows, &info.Current); err != nil {
			return nil, sqlError("Failed to scan snapshot", query, err)
		}
		info.SourceRevision = revision.String
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlError("Failed to list snapshots", query, err)
	}
	return out, nil
}

// Activate points the current views at an existing snapshot
func (s *Store) Activate(ctx context.Context, id string) error {
	err := s.svc.InTransaction(ctx, func(tx *sql.Tx) error {
		exists, err := snapshotExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
				WithContext("snapshot_id", id)
		}
		return setPointer(ctx, tx, id)
	})
	if err != nil {
		if code := errors.GetErrorCode(err); code == errors.ErrCodeSnapshotNotFound {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeActivateFailed, "failed to activate snapshot").
			WithContext("snapshot_id", id)
	}

	s.logger.WithField("snapshot_id", id).Info("snapshot activated")
	return nil
}

// Prune removes all but the newest keep snapshots, never the current one
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := warehouse.PruneCandidates(infos, keep)
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	err = s.svc.InTransaction(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			query := fmt.Sprintf("DELETE FROM %s WHERE SNAPSHOT_ID IN (%s)", t.name, placeholders)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return sqlError("Failed to prune rows", query, err).WithContext("table", t.name)
			}
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE ID IN (%s)", snapshotsTable, placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return sqlError("Failed to prune snapshots", query, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithField("removed", len(ids)).Info("snapshots pruned")
	return len(ids), nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.svc.Close()
}

func snapshotExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE ID = ?", snapshotsTable)
	var n int
	if err := tx.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, sqlError("Failed to look up snapshot", query, err)
	}
	return n > 0, nil
}

func setPointer(ctx context.Context, tx *sql.Tx, id string) error {
	query := fmt.Sprintf(
		"MERGE INTO %s c USING (SELECT ? AS NAME, ? AS SNAPSHOT_ID) p ON c.NAME = p.NAME "+
			"WHEN MATCHED THEN UPDATE SET SNAPSHOT_ID = p.SNAPSHOT_ID, UPDATED_AT = CURRENT_TIMESTAMP() "+
			"WHEN NOT MATCHED THEN INSERT (NAME, SNAPSHOT_ID, UPDATED_AT) VALUES (p.NAME, p.SNAPSHOT_ID, CURRENT_TIMESTAMP())",
		pointerTable)
	if _, err := tx.ExecContext(ctx, query, pointerName, id); err != nil {
		return sqlError("Failed to move current pointer", query, err)
	}
	return nil
}
