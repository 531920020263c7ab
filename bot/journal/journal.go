// Package journal keeps an audit row per delivery attempt in the submissions table.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/core/logger"
)

// Outcomes stored in the outcome column.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

const maxErrorLen = 500

// Entry is one row of the submissions table.
type Entry struct {
	ID            string    `db:"id"`
	UserID        int64     `db:"user_id"`
	ChatID        int64     `db:"chat_id"`
	SubmitterName string    `db:"submitter_name"`
	Category      string    `db:"category"`
	Subject       string    `db:"subject"`
	Semester      string    `db:"semester"`
	FileName      string    `db:"file_name"`
	FileID        string    `db:"file_id"`
	FileSize      int64     `db:"file_size"`
	Outcome       string    `db:"outcome"`
	Error         string    `db:"error"`
	SubmittedAt   time.Time `db:"submitted_at"`
}

// Journal writes entries through sqlx. It works with any driver sqlx knows the
// bind style of; production uses lib/pq.
type Journal struct {
	db *sqlx.DB
}

var _ intake.Recorder = (*Journal)(nil)

// New returns a Journal on db.
func New(db *sqlx.DB) *Journal {
	return &Journal{db: db}
}

const insertEntry = `INSERT INTO submissions
	(id, user_id, chat_id, submitter_name, category, subject, semester, file_name, file_id, file_size, outcome, error, submitted_at)
VALUES
	(:id, :user_id, :chat_id, :submitter_name, :category, :subject, :semester, :file_name, :file_id, :file_size, :outcome, :error, :submitted_at)`

// Record stores the outcome of one delivery attempt.
func (j *Journal) Record(ctx context.Context, sub intake.Submission, deliveryErr error) error {
	entry := EntryFrom(sub, deliveryErr)
	start := time.Now()
	_, err := j.db.NamedExecContext(ctx, insertEntry, entry)
	took := time.Since(start)
	if err != nil {
		logger.LogEvent(ctx, logger.Journal, slog.LevelWarn, "journal.insert",
			slog.String("status", "fail"),
			slog.String("submission_id", entry.ID),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("journal insert: %w", err)
	}
	logger.LogEvent(ctx, logger.Journal, slog.LevelDebug, "journal.insert",
		slog.String("status", "ok"),
		slog.String("submission_id", entry.ID),
		slog.String("outcome", entry.Outcome),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Entry
	query := j.db.Rebind(`SELECT id, user_id, chat_id, submitter_name, category, subject, semester,
		file_name, file_id, file_size, outcome, error, submitted_at
	FROM submissions ORDER BY submitted_at DESC LIMIT ?`)
	if err := j.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return out, nil
}

// EntryFrom converts a submission and its delivery result into a row.
func EntryFrom(sub intake.Submission, deliveryErr error) Entry {
	e := Entry{
		ID:            sub.ID.String(),
		UserID:        sub.Identity.UserID,
		ChatID:        sub.Identity.ChatID,
		SubmitterName: sub.Record.Name,
		Category:      sub.Record.Category,
		Subject:       sub.Record.Subject,
		Semester:      sub.Record.Semester,
		FileName:      sub.FileName(),
		Outcome:       OutcomeDelivered,
		SubmittedAt:   sub.SubmittedAt.UTC(),
	}
	if att := sub.Record.Attachment; att != nil {
		e.FileID = att.Ref.FileID
		e.FileSize = att.Ref.FileSize
	}
	if deliveryErr != nil {
		e.Outcome = OutcomeFailed
		e.Error = logger.SanitizeLimit(deliveryErr.Error(), maxErrorLen)
	}
	return e
}
