package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// PostgresStore persists conversation transcripts in PostgreSQL so
// conversations (including pending clarifications) survive restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initConversationSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initConversationSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			pending JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			input TEXT NOT NULL,
			intent TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			slots JSONB NULL,
			routing JSONB NULL,
			outcome TEXT NOT NULL,
			reply TEXT NOT NULL DEFAULT '',
			candidates JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init conversation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	if conversationID != "" {
		c, err := s.Get(ctx, conversationID)
		if err == nil {
			if c.UserID != userID {
				return nil, ErrNotFound
			}
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	c := &Conversation{
		ID:        conversationID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, pending, created_at, updated_at)
		 VALUES ($1, $2, NULL, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, pending, created_at, updated_at
		   FROM conversations WHERE id=$1`,
		conversationID,
	)

	var (
		c           Conversation
		pendingJSON []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &pendingJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if len(pendingJSON) > 0 {
		var pending PendingClarification
		if err := json.Unmarshal(pendingJSON, &pending); err != nil {
			return nil, fmt.Errorf("decode pending clarification: %w", err)
		}
		c.Pending = &pending
	}

	turns, err := s.loadTurns(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Turns = turns
	return &c, nil
}

func (s *PostgresStore) Append(ctx context.Context, conversationID string, turn Turn) (*Conversation, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	slotsJSON, err := marshalNullable(turn.Slots, len(turn.Slots) > 0)
	if err != nil {
		return nil, fmt.Errorf("encode turn slots: %w", err)
	}
	routingJSON, err := json.Marshal(turn.Routing)
	if err != nil {
		return nil, fmt.Errorf("encode turn routing: %w", err)
	}
	candidatesJSON, err := marshalNullable(turn.Candidates, len(turn.Candidates) > 0)
	if err != nil {
		return nil, fmt.Errorf("encode turn candidates: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id=$1)`, conversationID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	var seq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE conversation_id=$1`,
		conversationID,
	).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next turn seq: %w", err)
	}
	if turn.Seq == 0 {
		turn.Seq = seq
	} else if turn.Seq != seq {
		return nil, ErrConflictSeq
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_turns (
			conversation_id, seq, input, intent, confidence, slots, routing, outcome, reply, candidates, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		conversationID,
		turn.Seq,
		turn.Input,
		string(turn.Intent),
		turn.Confidence,
		slotsJSON,
		routingJSON,
		string(turn.Outcome),
		turn.Reply,
		candidatesJSON,
		turn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at=$2 WHERE id=$1`,
		conversationID, turn.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.Get(ctx, conversationID)
}

func (s *PostgresStore) SetPendingClarification(ctx context.Context, conversationID string, pending *PendingClarification) error {
	var pendingJSON []byte
	if pending != nil {
		encoded, err := json.Marshal(pending)
		if err != nil {
			return fmt.Errorf("encode pending clarification: %w", err)
		}
		pendingJSON = encoded
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET pending=$2, updated_at=$3 WHERE id=$1`,
		conversationID, pendingJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set pending clarification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) loadTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, input, intent, confidence, slots, routing, outcome, reply, candidates, created_at
		   FROM conversation_turns WHERE conversation_id=$1 ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, 8)
	for rows.Next() {
		var (
			turn           Turn
			intentName     string
			outcome        string
			slotsJSON      []byte
			routingJSON    []byte
			candidatesJSON []byte
		)
		if err := rows.Scan(
			&turn.Seq,
			&turn.Input,
			&intentName,
			&turn.Confidence,
			&slotsJSON,
			&routingJSON,
			&outcome,
			&turn.Reply,
			&candidatesJSON,
			&turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Intent = intent.Intent(intentName)
		turn.Outcome = Outcome(outcome)
		if len(slotsJSON) > 0 {
			if err := json.Unmarshal(slotsJSON, &turn.Slots); err != nil {
				return nil, fmt.Errorf("decode turn slots: %w", err)
			}
		}
		if len(routingJSON) > 0 {
			if err := json.Unmarshal(routingJSON, &turn.Routing); err != nil {
				return nil, fmt.Errorf("decode turn routing: %w", err)
			}
		}
		if len(candidatesJSON) > 0 {
			var candidates []slots.Candidate
			if err := json.Unmarshal(candidatesJSON, &candidates); err != nil {
				return nil, fmt.Errorf("decode turn candidates: %w", err)
			}
			turn.Candidates = candidates
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func marshalNullable(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
