package store

import (
	"database/sql"
	"errors"
	"slices"
	"time"
)

const messageColumns = `id, chat_jid, msg_id, sender_jid, sender_name, body, message_type,
	has_media, mime_type, filename, from_me, status, timestamp`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ChatJID, &m.MsgID, &m.SenderJID, &m.SenderName, &m.Body,
		&m.MessageType, &m.HasMedia, &m.MimeType, &m.Filename, &m.FromMe, &m.Status, &m.Timestamp)
	return m, err
}

// UpsertMessage inserts or updates a message (idempotent on chat_jid + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, body, message_type,
			has_media, mime_type, filename, from_me, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			status = excluded.status`,
		m.ChatJID, m.MsgID, m.SenderJID, m.SenderName, m.Body, m.MessageType,
		m.HasMedia, m.MimeType, m.Filename, m.FromMe, m.Status, m.Timestamp, now)
	return err
}

// LatestMessages returns up to limit of the most recent messages of a chat,
// in ascending timestamp order.
func (db *DB) LatestMessages(chatJID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_jid = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatJID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// GetMessage returns one message, or nil when absent.
func (db *DB) GetMessage(chatJID, msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE chat_jid = ? AND msg_id = ?`, chatJID, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageBody replaces a message body. It reports whether a row changed.
func (db *DB) UpdateMessageBody(chatJID, msgID, body string) (bool, error) {
	res, err := db.Exec(`UPDATE messages SET body = ? WHERE chat_jid = ? AND msg_id = ?`, body, chatJID, msgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteMessage removes a message from the mirror. It reports whether a row was removed.
func (db *DB) DeleteMessage(chatJID, msgID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM messages WHERE chat_jid = ? AND msg_id = ?`, chatJID, msgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
