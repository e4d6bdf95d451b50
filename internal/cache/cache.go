// Package cache keeps folder-listing summaries in a local SQLite
// database so list views and local search do not pay a mail-store round
// trip for rows the server has already projected. Only summary
// projections are cached; full domain records are built per request and
// never stored.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/zeegates/minig/internal/model"
)

// SummaryCache stores message summary rows in SQLite.
type SummaryCache struct {
	db *sqlx.DB
}

// summaryRow is the database shape of one cached summary.
type summaryRow struct {
	ID        string       `db:"id"`
	Folder    string       `db:"folder"`
	MessageID string       `db:"message_id"`
	Subject   string       `db:"subject"`
	Sender    string       `db:"sender"`
	Date      sql.NullTime `db:"date"`
	Read      bool         `db:"read"`
	Starred   bool         `db:"starred"`
	Answered  bool         `db:"answered"`
	Deleted   bool         `db:"deleted"`
	Forwarded bool         `db:"forwarded"`
	MDNSent   bool         `db:"mdn_sent"`
	FetchedAt time.Time    `db:"fetched_at"`
}

// New opens (or creates) the cache database at dbPath, enables WAL
// mode, and runs any pending schema migrations. Use ":memory:" for an
// ephemeral cache.
func New(dbPath string) (*SummaryCache, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SummaryCache{db: db}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *SummaryCache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *SummaryCache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertSummaries writes summary projections into the cache, replacing
// any stale rows for the same coordinates.
func (c *SummaryCache) UpsertSummaries(ctx context.Context, summaries []*model.MailMessage) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
INSERT INTO message_summaries
	(id, folder, message_id, subject, sender, date,
	 read, starred, answered, deleted, forwarded, mdn_sent, fetched_at)
VALUES
	(:id, :folder, :message_id, :subject, :sender, :date,
	 :read, :starred, :answered, :deleted, :forwarded, :mdn_sent, :fetched_at)
ON CONFLICT(id) DO UPDATE SET
	subject    = excluded.subject,
	sender     = excluded.sender,
	date       = excluded.date,
	read       = excluded.read,
	starred    = excluded.starred,
	answered   = excluded.answered,
	deleted    = excluded.deleted,
	forwarded  = excluded.forwarded,
	mdn_sent   = excluded.mdn_sent,
	fetched_at = excluded.fetched_at`

	for _, s := range summaries {
		if _, err := tx.NamedExecContext(ctx, query, rowFromSummary(s)); err != nil {
			return fmt.Errorf("upserting summary %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// FolderPage returns one cached page of a folder, newest first.
func (c *SummaryCache) FolderPage(ctx context.Context, folder string, page, pageSize int) ([]*model.MailMessage, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if page < 0 {
		page = 0
	}

	var rows []summaryRow
	err := c.db.SelectContext(ctx, &rows, `
SELECT * FROM message_summaries
WHERE folder = ?
ORDER BY date DESC
LIMIT ? OFFSET ?`,
		folder, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("reading cached folder %s: %w", folder, err)
	}

	return summariesFromRows(rows), nil
}

// Search finds cached summaries whose subject or sender matches the
// query, newest first.
func (c *SummaryCache) Search(ctx context.Context, query string, limit int) ([]*model.MailMessage, error) {
	if limit < 1 {
		limit = 50
	}

	pattern := "%" + query + "%"
	var rows []summaryRow
	err := c.db.SelectContext(ctx, &rows, `
SELECT * FROM message_summaries
WHERE subject LIKE ? OR sender LIKE ?
ORDER BY date DESC
LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching cache for %q: %w", query, err)
	}

	return summariesFromRows(rows), nil
}

// Get returns the cached summary for a composite id, or nil when the
// row is not cached.
func (c *SummaryCache) Get(ctx context.Context, id string) (*model.MailMessage, error) {
	var row summaryRow
	err := c.db.GetContext(ctx, &row, "SELECT * FROM message_summaries WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached summary %s: %w", id, err)
	}

	out := summariesFromRows([]summaryRow{row})
	return out[0], nil
}

// Evict removes a single cached summary; evicting an absent row is a
// no-op.
func (c *SummaryCache) Evict(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM message_summaries WHERE id = ?", id); err != nil {
		return fmt.Errorf("evicting summary %s: %w", id, err)
	}
	return nil
}

// EvictFolder removes every cached summary of a folder.
func (c *SummaryCache) EvictFolder(ctx context.Context, folder string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM message_summaries WHERE folder = ?", folder); err != nil {
		return fmt.Errorf("evicting folder %s: %w", folder, err)
	}
	return nil
}

func rowFromSummary(m *model.MailMessage) summaryRow {
	row := summaryRow{
		ID:        m.ID,
		Folder:    m.Folder,
		MessageID: m.MessageID,
		Subject:   m.Subject,
		Read:      m.Read != nil && *m.Read,
		Starred:   m.Starred != nil && *m.Starred,
		Answered:  m.Answered != nil && *m.Answered,
		Deleted:   m.Deleted != nil && *m.Deleted,
		Forwarded: m.Forwarded != nil && *m.Forwarded,
		MDNSent:   m.MDNSent != nil && *m.MDNSent,
		FetchedAt: time.Now().UTC(),
	}
	if m.Sender != nil {
		row.Sender = m.Sender.Email
	}
	if m.Date != nil {
		row.Date = sql.NullTime{Time: m.Date.UTC(), Valid: true}
	}
	return row
}

func summariesFromRows(rows []summaryRow) []*model.MailMessage {
	out := make([]*model.MailMessage, 0, len(rows))
	for _, r := range rows {
		m := &model.MailMessage{
			ID:        r.ID,
			Folder:    r.Folder,
			MessageID: r.MessageID,
			Subject:   r.Subject,
			Read:      model.BoolPtr(r.Read),
			Starred:   model.BoolPtr(r.Starred),
			Answered:  model.BoolPtr(r.Answered),
			Deleted:   model.BoolPtr(r.Deleted),
			Forwarded: model.BoolPtr(r.Forwarded),
			MDNSent:   model.BoolPtr(r.MDNSent),
		}
		if r.Sender != "" {
			m.Sender = &model.Address{Email: r.Sender}
		}
		if r.Date.Valid {
			d := r.Date.Time
			m.Date = &d
		}
		out = append(out, m)
	}
	return out
}
