package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatppt_studio/generator"
)

// PostgresStore persists histories in Postgres so several processes can
// share sessions. Mutations of one session take a row lock on its sessions
// row, which serializes them without blocking other sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);
	`)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// lockSession creates the session row when missing and locks it for the
// remainder of tx.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("create session %s: %w", sessionID, err)
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID); err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) ([]generator.Message, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM chat_messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []generator.Message
	for rows.Next() {
		var m generator.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, sessionID string, msgs ...generator.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		for _, m := range msgs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)`,
				sessionID, string(m.Role), m.Content); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ClearKeepingLast(ctx context.Context, sessionID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			DELETE FROM chat_messages
			WHERE session_id = $1
			  AND id < (SELECT MAX(id) FROM chat_messages WHERE session_id = $1)`, sessionID)
		if err != nil {
			return fmt.Errorf("truncate session %s: %w", sessionID, err)
		}
		return nil
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, COUNT(m.id), s.created_at, s.updated_at
		FROM chat_sessions s LEFT JOIN chat_messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var count int64
		if err := rows.Scan(&info.ID, &count, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.Messages = int(count)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
