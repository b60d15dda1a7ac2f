package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const upsertRecordSQL = `
	INSERT INTO linked_records (id, channel_id, name, first_name, status, service, record_date, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		channel_id = excluded.channel_id,
		name = excluded.name,
		first_name = excluded.first_name,
		status = excluded.status,
		service = excluded.service,
		record_date = excluded.record_date,
		updated_at = excluded.updated_at`

// UpsertLinkedRecord inserts or replaces a business record.
func (db *DB) UpsertLinkedRecord(r *LinkedRecord) error {
	_, err := db.Exec(upsertRecordSQL, r.ID, r.ChannelID, r.Name, r.FirstName, r.Status, r.Service, r.RecordDate, time.Now().UnixMilli())
	return err
}

// ImportRecords upserts records in a single transaction.
func (db *DB) ImportRecords(records []LinkedRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, r := range records {
		if r.ID == "" || r.ChannelID == "" {
			return fmt.Errorf("record %q: id and channel id are required", r.ID)
		}
		if _, err := tx.Exec(upsertRecordSQL, r.ID, r.ChannelID, r.Name, r.FirstName, r.Status, r.Service, r.RecordDate, now); err != nil {
			return fmt.Errorf("upsert record %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ListLinked returns every channel that has a record, ordered by channel.
// A channel with several records yields one entry per record.
func (db *DB) ListLinked() ([]LinkedRecord, error) {
	rows, err := db.Query(`
		SELECT id, channel_id, name, first_name, status, service, record_date
		FROM linked_records
		ORDER BY channel_id, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// RecordFor returns the first record attached to a channel, or nil.
func (db *DB) RecordFor(channelID string) (*LinkedRecord, error) {
	var r LinkedRecord
	err := db.QueryRow(`
		SELECT id, channel_id, name, first_name, status, service, record_date
		FROM linked_records WHERE channel_id = ? ORDER BY id LIMIT 1`, channelID).
		Scan(&r.ID, &r.ChannelID, &r.Name, &r.FirstName, &r.Status, &r.Service, &r.RecordDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]LinkedRecord, error) {
	var out []LinkedRecord
	for rows.Next() {
		var r LinkedRecord
		if err := rows.Scan(&r.ID, &r.ChannelID, &r.Name, &r.FirstName, &r.Status, &r.Service, &r.RecordDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertGroup creates or replaces a recipient group and its member list.
func (db *DB) UpsertGroup(g *Group) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO recipient_groups (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		g.ID, g.Name, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM group_members WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for i, ch := range g.Members {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO group_members (group_id, channel_id, position) VALUES (?, ?, ?)`, g.ID, ch, i); err != nil {
			return fmt.Errorf("insert member %q: %w", ch, err)
		}
	}
	return tx.Commit()
}

// DeleteGroup removes a group. Members cascade.
func (db *DB) DeleteGroup(id string) error {
	_, err := db.Exec(`DELETE FROM recipient_groups WHERE id = ?`, id)
	return err
}

// ListGroups returns all groups with their members in insertion order.
func (db *DB) ListGroups() ([]Group, error) {
	rows, err := db.Query(`
		SELECT g.id, g.name, COALESCE(m.channel_id, '')
		FROM recipient_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		ORDER BY g.name, g.id, m.position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		var id, name, member string
		if err := rows.Scan(&id, &name, &member); err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].ID != id {
			groups = append(groups, Group{ID: id, Name: name})
		}
		if member != "" {
			g := &groups[len(groups)-1]
			g.Members = append(g.Members, member)
		}
	}
	return groups, rows.Err()
}
