package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		category TEXT NOT NULL,
		question TEXT NOT NULL,
		resolution TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category);
	CREATE INDEX IF NOT EXISTS idx_tickets_timestamp ON tickets(timestamp);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertTickets writes a batch inside a single transaction. Existing rows are
// left untouched (first write wins); any row-level error rolls the whole
// batch back. Returns the number of rows actually inserted.
func (c *Client) UpsertTickets(ctx context.Context, tickets []models.Ticket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tickets (ticket_id, customer_name, timestamp, category, question, resolution, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_id) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	inserted := 0

	for _, ticket := range tickets {
		res, err := stmt.ExecContext(ctx,
			ticket.TicketID,
			ticket.CustomerName,
			ticket.Timestamp.Unix(),
			ticket.Category,
			ticket.Question,
			ticket.Resolution,
			now,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert ticket %s: %w", ticket.TicketID, err)
		}

		rows, err := res.RowsAffected()
		if err == nil {
			inserted += int(rows)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ticket batch: %w", err)
	}

	logger.Debug("Ticket batch persisted",
		zap.Int("batch_size", len(tickets)),
		zap.Int("inserted", inserted),
	)

	return inserted, nil
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	query := `SELECT ticket_id, customer_name, timestamp, category, question, resolution FROM tickets WHERE ticket_id = ?`

	var ticket models.Ticket
	var ts int64

	err := c.db.QueryRowContext(ctx, query, ticketID).Scan(
		&ticket.TicketID,
		&ticket.CustomerName,
		&ts,
		&ticket.Category,
		&ticket.Question,
		&ticket.Resolution,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	ticket.Timestamp = time.Unix(ts, 0).UTC()

	return &ticket, nil
}

func (c *Client) CountTickets(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
