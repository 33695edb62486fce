package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists todo items in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTodoSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initTodoSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todo_items (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			due_date TEXT NOT NULL DEFAULT '',
			done BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todo_items_user_created ON todo_items (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init todo schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveItem(ctx context.Context, item Item) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO todo_items (id, user_id, content, priority, due_date, done, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
			content=EXCLUDED.content,
			priority=EXCLUDED.priority,
			due_date=EXCLUDED.due_date,
			done=EXCLUDED.done,
			updated_at=EXCLUDED.updated_at,
			completed_at=EXCLUDED.completed_at`,
		item.ID,
		item.UserID,
		item.Content,
		string(item.Priority),
		item.DueDate,
		item.Done,
		item.CreatedAt,
		item.UpdatedAt,
		item.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert todo item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, userID, itemID string) (Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, content, priority, due_date, done, created_at, updated_at, completed_at
		   FROM todo_items WHERE user_id=$1 AND id=$2`,
		userID, itemID,
	)
	item, err := scanItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Item{}, ErrStoreNotFound
		}
		return Item{}, fmt.Errorf("get todo item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, userID string, includeDone bool, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, priority, due_date, done, created_at, updated_at, completed_at
		   FROM todo_items
		  WHERE user_id=$1 AND ($2 OR NOT done)
		  ORDER BY created_at ASC LIMIT $3`,
		userID, includeDone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list todo items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, userID, itemID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM todo_items WHERE user_id=$1 AND id=$2`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("delete todo item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *PostgresStore) FindByContent(ctx context.Context, userID, fragment string) ([]Item, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, priority, due_date, done, created_at, updated_at, completed_at
		   FROM todo_items
		  WHERE user_id=$1 AND content ILIKE '%' || $2 || '%'
		  ORDER BY created_at ASC`,
		userID, fragment,
	)
	if err != nil {
		return nil, fmt.Errorf("find todo items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	items := make([]Item, 0, 8)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todo rows: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item              Item
		priority          string
		completedNullable *time.Time
	)
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Content,
		&priority,
		&item.DueDate,
		&item.Done,
		&item.CreatedAt,
		&item.UpdatedAt,
		&completedNullable,
	); err != nil {
		return Item{}, err
	}
	item.Priority = Priority(priority)
	item.CompletedAt = completedNullable
	return item, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
