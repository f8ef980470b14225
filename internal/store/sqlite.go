package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailterm/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertEntities inserts or replaces a batch of entity snapshots.
func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO entities (
			id, thread_id, kind, sender,
			subject, snippet, category,
			is_read, is_done, is_deleted,
			received_at, updated_at, fetched_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		_, err = stmt.ExecContext(ctx,
			e.ID, e.ThreadID, string(e.Kind), e.From,
			e.Subject, e.Snippet, string(e.Category),
			boolToInt(e.IsRead), boolToInt(e.IsDone), boolToInt(e.IsDeleted),
			e.ReceivedAt.UTC(), e.UpdatedAt.UTC(), e.FetchedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting entity %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// GetEntities retrieves cached entities matching the provided filter.
func (s *SQLiteStore) GetEntities(
	ctx context.Context,
	opts EntityFilter,
) ([]model.Entity, error) {
	var conditions []string
	var args []interface{}

	if opts.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*opts.Category))
	}
	if opts.Unread != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, boolToInt(!*opts.Unread))
	}
	if opts.Done != nil {
		conditions = append(conditions, "is_done = ?")
		args = append(args, boolToInt(*opts.Done))
	}
	if opts.Deleted != nil {
		conditions = append(conditions, "is_deleted = ?")
		args = append(args, boolToInt(*opts.Deleted))
	}
	if opts.Query != nil && *opts.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR sender LIKE ? OR snippet LIKE ?)")
		q := "%" + *opts.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM entities"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Determine sort column.
	sortBy := "received_at"
	if opts.SortBy != "" {
		allowedSorts := map[string]bool{
			"received_at": true,
			"updated_at":  true,
			"subject":     true,
			"sender":      true,
		}
		if allowedSorts[opts.SortBy] {
			sortBy = opts.SortBy
		}
	}

	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

// GetEntityByID retrieves a single cached entity by its ID. Returns
// (nil, nil) when the entity is not cached.
func (s *SQLiteStore) GetEntityByID(
	ctx context.Context,
	id string,
) (*model.Entity, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM entities WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying entity %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("getting entity %s: %w", id, err)
		}
		return nil, nil
	}

	e, err := scanEntity(rows)
	if err != nil {
		return nil, fmt.Errorf("getting entity %s: %w", id, err)
	}
	return &e, nil
}

// DeleteEntities removes cached entities that left the subscribed set.
func (s *SQLiteStore) DeleteEntities(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("DELETE FROM entities WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting entities: %w", err)
	}
	return nil
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, entity_id, message, read, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.EntityID, n.Message,
		boolToInt(n.Read), n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetUnreadNotifications retrieves all notifications that have not been
// read, ordered by creation time descending.
func (s *SQLiteStore) GetUnreadNotifications(
	ctx context.Context,
) ([]model.Notification, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM notifications WHERE read = 0 ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	id string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// scanEntity scans an entity row from a sqlx.Rows result set.
func scanEntity(rows *sqlx.Rows) (model.Entity, error) {
	var (
		e          model.Entity
		kind       string
		category   string
		isRead     int
		isDone     int
		isDeleted  int
		receivedAt time.Time
		updatedAt  time.Time
		fetchedAt  time.Time
	)

	err := rows.Scan(
		&e.ID, &e.ThreadID, &kind, &e.From,
		&e.Subject, &e.Snippet, &category,
		&isRead, &isDone, &isDeleted,
		&receivedAt, &updatedAt, &fetchedAt,
	)
	if err != nil {
		return model.Entity{}, fmt.Errorf("scanning entity row: %w", err)
	}

	e.Kind = model.EntityKind(kind)
	e.Category = model.Category(category)
	e.IsRead = isRead != 0
	e.IsDone = isDone != 0
	e.IsDeleted = isDeleted != 0
	e.ReceivedAt = receivedAt
	e.UpdatedAt = updatedAt
	e.FetchedAt = fetchedAt

	return e, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		readInt   int
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &n.EntityID, &n.Message,
		&readInt, &createdAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Read = readInt != 0
	n.CreatedAt = createdAt

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
