// ABOUTME: Broadcast log persistence: one row per send operation plus per-recipient deliveries
// ABOUTME: Written once when a broadcast completes; read by !history and the admin CLI

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultBroadcastLimit = 10

// RecordBroadcast stores a completed broadcast and its deliveries atomically.
func (s *SQLiteStore) RecordBroadcast(ctx context.Context, b *Broadcast) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.FinishedAt.IsZero() {
		b.FinishedAt = b.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO broadcasts (id, group_name, body, media_url, status, sent, failed, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, nullString(b.GroupName), b.Body, nullString(b.MediaURL), b.Status, b.Sent, b.Failed,
		formatTime(b.CreatedAt), formatTime(b.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting broadcast: %w", err)
	}

	for _, d := range b.Deliveries {
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = b.FinishedAt
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries (broadcast_id, phone_number, provider_message_id, error, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID, d.PhoneNumber, nullString(d.ProviderMessageID), nullString(d.Error), formatTime(createdAt))
		if err != nil {
			return fmt.Errorf("inserting delivery: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing broadcast: %w", err)
	}

	s.logger.Debug("recorded broadcast", "id", b.ID, "status", b.Status, "sent", b.Sent, "failed", b.Failed)
	return nil
}

// GetBroadcast returns a broadcast with its deliveries.
func (s *SQLiteStore) GetBroadcast(ctx context.Context, id string) (*Broadcast, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_name, body, media_url, status, sent, failed, created_at, finished_at
		FROM broadcasts WHERE id = ?
	`, id)
	b, err := scanBroadcast(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT phone_number, provider_message_id, error, created_at
		FROM deliveries WHERE broadcast_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Delivery
		var providerID, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&d.PhoneNumber, &providerID, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.ProviderMessageID = providerID.String
		d.Error = errText.String
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		b.Deliveries = append(b.Deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return b, nil
}

// ListBroadcasts returns the newest broadcasts first. A non-positive limit uses the default.
func (s *SQLiteStore) ListBroadcasts(ctx context.Context, limit int) ([]*Broadcast, error) {
	if limit <= 0 {
		limit = defaultBroadcastLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_name, body, media_url, status, sent, failed, created_at, finished_at
		FROM broadcasts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying broadcasts: %w", err)
	}
	defer rows.Close()

	var out []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating broadcasts: %w", err)
	}
	return out, nil
}

func scanBroadcast(row rowScanner) (*Broadcast, error) {
	var b Broadcast
	var groupName, mediaURL sql.NullString
	var createdAt, finishedAt string
	err := row.Scan(&b.ID, &groupName, &b.Body, &mediaURL, &b.Status, &b.Sent, &b.Failed, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning broadcast: %w", err)
	}
	b.GroupName = groupName.String
	b.MediaURL = mediaURL.String
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// nullString stores empty strings as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
