// ABOUTME: Thread binding persistence: phone number to chat thread history
// ABOUTME: Bindings are append-only; the highest seq per phone number is active

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const bindingColumns = `seq, phone_number, channel_id, thread_id, display_name, created_at`

// CreateThreadBinding appends a binding and sets b.Seq.
func (s *SQLiteStore) CreateThreadBinding(ctx context.Context, b *ThreadBinding) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_bindings (phone_number, channel_id, thread_id, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.PhoneNumber, b.ChannelID, b.ThreadID, b.DisplayName, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting thread binding: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading binding seq: %w", err)
	}
	b.Seq = seq

	s.logger.Debug("created thread binding", "phone", b.PhoneNumber, "channel", b.ChannelID, "thread", b.ThreadID)
	return nil
}

// GetActiveThreadBinding returns the most recent binding for phoneNumber.
func (s *SQLiteStore) GetActiveThreadBinding(ctx context.Context, phoneNumber string) (*ThreadBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bindingColumns+`
		FROM thread_bindings
		WHERE phone_number = ?
		ORDER BY seq DESC
		LIMIT 1
	`, phoneNumber)

	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListActiveThreadBindings returns the most recent binding for every phone number.
func (s *SQLiteStore) ListActiveThreadBindings(ctx context.Context) ([]*ThreadBinding, error) {
	return s.queryBindings(ctx, `
		SELECT `+bindingColumns+`
		FROM thread_bindings b
		WHERE b.seq = (SELECT MAX(seq) FROM thread_bindings WHERE phone_number = b.phone_number)
		ORDER BY b.phone_number
	`)
}

// ListThreadBindings returns every binding for phoneNumber, oldest first.
func (s *SQLiteStore) ListThreadBindings(ctx context.Context, phoneNumber string) ([]*ThreadBinding, error) {
	return s.queryBindings(ctx, `
		SELECT `+bindingColumns+`
		FROM thread_bindings
		WHERE phone_number = ?
		ORDER BY seq
	`, phoneNumber)
}

// ListPhonesForThread returns phone numbers whose active binding is the given thread.
func (s *SQLiteStore) ListPhonesForThread(ctx context.Context, channelID, threadID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.phone_number
		FROM thread_bindings b
		WHERE b.channel_id = ? AND b.thread_id = ?
		  AND b.seq = (SELECT MAX(seq) FROM thread_bindings WHERE phone_number = b.phone_number)
		ORDER BY b.phone_number
	`, channelID, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying thread phones: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning phone: %w", err)
		}
		phones = append(phones, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread phones: %w", err)
	}
	return phones, nil
}

func (s *SQLiteStore) queryBindings(ctx context.Context, query string, args ...any) ([]*ThreadBinding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying thread bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*ThreadBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread bindings: %w", err)
	}
	return bindings, nil
}

// scanBinding returns sql.ErrNoRows unwrapped so callers can map it.
func scanBinding(row rowScanner) (*ThreadBinding, error) {
	var b ThreadBinding
	var createdAt string
	err := row.Scan(&b.Seq, &b.PhoneNumber, &b.ChannelID, &b.ThreadID, &b.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning thread binding: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}
