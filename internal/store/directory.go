// ABOUTME: Contact, group, and membership persistence for SQLiteStore
// ABOUTME: Maps UNIQUE violations to ErrDuplicateContact and ErrDuplicateGroup

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateContact inserts a contact. The phone number must already be canonical.
func (s *SQLiteStore) CreateContact(ctx context.Context, c *Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, phone_number, created_at) VALUES (?, ?, ?)`,
		c.Name, c.PhoneNumber, formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "contacts") {
			return ErrDuplicateContact
		}
		return fmt.Errorf("inserting contact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading contact id: %w", err)
	}
	c.ID = id

	s.logger.Debug("created contact", "id", c.ID, "phone", c.PhoneNumber)
	return nil
}

// GetContact retrieves a contact by ID.
func (s *SQLiteStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, created_at FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

// GetContactByPhone retrieves a contact by canonical phone number.
func (s *SQLiteStore) GetContactByPhone(ctx context.Context, phoneNumber string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, created_at FROM contacts WHERE phone_number = ?`, phoneNumber)
	return scanContact(row)
}

// ListContacts returns all contacts ordered by name.
func (s *SQLiteStore) ListContacts(ctx context.Context) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone_number, created_at FROM contacts ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows)
}

// RenameContact changes a contact's display name.
func (s *SQLiteStore) RenameContact(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contacts SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("renaming contact: %w", err)
	}
	return requireAffected(res)
}

// DeleteContact removes a contact and its memberships in one transaction.
func (s *SQLiteStore) DeleteContact(ctx context.Context, id int64) error {
	return s.deleteWithMembers(ctx, "contacts", "contact_id", id)
}

// CreateGroup inserts a group.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *Group) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (name, description, created_at) VALUES (?, ?, ?)`,
		g.Name, g.Description, formatTime(g.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "groups") {
			return ErrDuplicateGroup
		}
		return fmt.Errorf("inserting group: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading group id: %w", err)
	}
	g.ID = id

	s.logger.Debug("created group", "id", g.ID, "name", g.Name)
	return nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM groups WHERE id = ?`, id)
	return scanGroup(row)
}

// GetGroupByName retrieves a group by name, ignoring ASCII case.
func (s *SQLiteStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM groups WHERE name = ?`, name)
	return scanGroup(row)
}

// ListGroups returns all groups ordered by name, with member counts.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.created_at, COUNT(m.contact_id)
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.name, g.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var g Group
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &createdAt, &g.MemberCount); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}
	return groups, nil
}

// DeleteGroup removes a group and its memberships in one transaction.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id int64) error {
	return s.deleteWithMembers(ctx, "groups", "group_id", id)
}

// AddGroupMember adds a contact to a group. Adding an existing member is a no-op.
// Returns ErrNotFound if either side does not exist.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, contactID int64) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.GetContact(ctx, contactID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, contact_id, added_at) VALUES (?, ?, ?)`,
		groupID, contactID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}
	return nil
}

// RemoveGroupMember removes a contact from a group.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, contactID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND contact_id = ?`, groupID, contactID)
	if err != nil {
		return fmt.Errorf("removing group member: %w", err)
	}
	return requireAffected(res)
}

// GetGroupMembers returns the contacts in a group ordered by name.
func (s *SQLiteStore) GetGroupMembers(ctx context.Context, groupID int64) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.phone_number, c.created_at
		FROM contacts c
		JOIN group_members m ON m.contact_id = c.id
		WHERE m.group_id = ?
		ORDER BY c.name COLLATE NOCASE, c.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows)
}

// deleteWithMembers deletes a row from table and its group_members rows.
// The explicit membership delete mirrors the ON DELETE CASCADE clause so the
// result does not depend on foreign key enforcement being enabled.
func (s *SQLiteStore) deleteWithMembers(ctx context.Context, table, memberColumn string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE `+memberColumn+` = ?`, id); err != nil {
		return fmt.Errorf("deleting memberships: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	s.logger.Debug("deleted", "table", table, "id", id)
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectContacts(rows *sql.Rows) ([]*Contact, error) {
	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contacts: %w", err)
	}
	return contacts, nil
}

func scanGroup(row rowScanner) (*Group, error) {
	var g Group
	var createdAt string
	err := row.Scan(&g.ID, &g.Name, &g.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning group: %w", err)
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &g, nil
}
