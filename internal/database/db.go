package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Alias1177/SignalScanner/models"
)

// Prediction statuses stored in the predictions table
const (
	StatusActive  = "active"
	StatusEvicted = "evicted"
	StatusDropped = "dropped"
	StatusClosed  = "closed"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// New opens a connection, checks it and creates missing tables
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	db, err := sql.Open("postgres", params.DSN())
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &DB{db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS card_counts (
			symbol TEXT PRIMARY KEY,
			card_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			indicator_count INTEGER NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			estimated_run_ms BIGINT NOT NULL,
			indicators_hit JSONB,
			sizing JSONB,
			card_count INTEGER NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS predictions_status_idx ON predictions (status)`,
		`CREATE TABLE IF NOT EXISTS prediction_outcomes (
			prediction_id TEXT PRIMARY KEY REFERENCES predictions (id),
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			pnl_percent DOUBLE PRECISION NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL,
			actual_duration_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id BIGINT PRIMARY KEY,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSentiment returns every persisted card count
func (db *DB) LoadSentiment(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, card_count FROM card_counts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var symbol string
		var count int
		if err := rows.Scan(&symbol, &count); err != nil {
			return nil, err
		}
		out[symbol] = count
	}
	return out, rows.Err()
}

// SaveSentiment upserts the card count of one symbol
func (db *DB) SaveSentiment(ctx context.Context, symbol string, value int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO card_counts (symbol, card_count, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol)
		DO UPDATE SET card_count = EXCLUDED.card_count, updated_at = EXCLUDED.updated_at
	`, symbol, value, time.Now().UTC())
	return err
}

// RecordAdmission inserts a newly admitted prediction
func (db *DB) RecordAdmission(ctx context.Context, p *models.Prediction) error {
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("encoding breakdown: %w", err)
	}
	var sizing sql.NullString
	if p.Sizing != nil {
		raw, err := json.Marshal(p.Sizing)
		if err != nil {
			return fmt.Errorf("encoding sizing: %w", err)
		}
		sizing = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, symbol, direction, score, indicator_count, confidence, estimated_run_ms,
			indicators_hit, sizing, card_count, entry_price, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`,
		p.ID, p.Symbol, string(p.Direction), p.Score, p.IndicatorCount, p.Confidence,
		p.EstimatedRun().Milliseconds(), string(breakdown), sizing, p.SentimentAtCreation, p.EntryPrice,
		StatusActive, p.CreatedAt, p.ExpiresAt)
	return err
}

func (db *DB) updateStatus(ctx context.Context, id, status string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE predictions SET status = $2, closed_at = $3 WHERE id = $1`,
		id, status, at)
	return err
}

// RecordEviction marks a prediction pushed out of the active set
func (db *DB) RecordEviction(ctx context.Context, p *models.Prediction, at time.Time) error {
	return db.updateStatus(ctx, p.ID, StatusEvicted, at)
}

// RecordDrop marks an expired prediction that never got an exit price
func (db *DB) RecordDrop(ctx context.Context, p *models.Prediction, at time.Time) error {
	return db.updateStatus(ctx, p.ID, StatusDropped, at)
}

// RecordOutcome stores the outcome and closes the prediction in one transaction
func (db *DB) RecordOutcome(ctx context.Context, o *models.Outcome) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prediction_outcomes (
			prediction_id, symbol, direction, entry_price, exit_price, pnl_percent, closed_at, actual_duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (prediction_id) DO NOTHING
	`, o.PredictionID, o.Symbol, string(o.Direction), o.EntryPrice, o.ExitPrice, o.PnLPercent,
		o.ClosedAt, o.ActualDurationMs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions SET status = $2, closed_at = $3 WHERE id = $1`,
		o.PredictionID, StatusClosed, o.ClosedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadActive returns the predictions still marked active
func (db *DB) LoadActive(ctx context.Context) ([]*models.Prediction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, symbol, direction, score, indicator_count, confidence,
			indicators_hit, sizing, card_count, entry_price, created_at, expires_at
		FROM predictions
		WHERE status = $1
		ORDER BY created_at
	`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Prediction
	for rows.Next() {
		var (
			p         models.Prediction
			direction string
			breakdown []byte
			sizing    []byte
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &direction, &p.Score, &p.IndicatorCount, &p.Confidence,
			&breakdown, &sizing, &p.SentimentAtCreation, &p.EntryPrice, &p.CreatedAt, &p.ExpiresAt); err != nil {
			return nil, err
		}
		p.Direction = models.Direction(direction)
		if len(breakdown) > 0 {
			if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
				return nil, fmt.Errorf("decoding breakdown of %s: %w", p.ID, err)
			}
		}
		if len(sizing) > 0 {
			p.Sizing = &models.PositionSizing{}
			if err := json.Unmarshal(sizing, p.Sizing); err != nil {
				return nil, fmt.Errorf("decoding sizing of %s: %w", p.ID, err)
			}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Outcomes returns outcomes closed at or after since, oldest first
func (db *DB) Outcomes(ctx context.Context, since time.Time) ([]models.Outcome, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT prediction_id, symbol, direction, entry_price, exit_price, pnl_percent, closed_at, actual_duration_ms
		FROM prediction_outcomes
		WHERE closed_at >= $1
		ORDER BY closed_at
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Outcome
	for rows.Next() {
		var o models.Outcome
		var direction string
		if err := rows.Scan(&o.PredictionID, &o.Symbol, &direction, &o.EntryPrice, &o.ExitPrice,
			&o.PnLPercent, &o.ClosedAt, &o.ActualDurationMs); err != nil {
			return nil, err
		}
		o.Direction = models.Direction(direction)
		out = append(out, o)
	}
	return out, rows.Err()
}

// AddSubscriber registers (or re-activates) a Telegram chat for notifications
func (db *DB) AddSubscriber(ctx context.Context, chatID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO subscribers (chat_id, active, created_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (chat_id) DO UPDATE SET active = TRUE
	`, chatID, time.Now().UTC())
	return err
}

// RemoveSubscriber deactivates a chat
func (db *DB) RemoveSubscriber(ctx context.Context, chatID int64) error {
	res, err := db.ExecContext(ctx, `UPDATE subscribers SET active = FALSE WHERE chat_id = $1`, chatID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

var ErrSubscriberNotFound = errors.New("subscriber not found")

// ActiveChatIDs lists the chats that receive notifications
func (db *DB) ActiveChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT chat_id FROM subscribers WHERE active ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
