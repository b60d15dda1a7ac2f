package store

import (
	"database/sql"
	"errors"
	"time"
)

const chatColumns = `c.jid,
	COALESCE(NULLIF(c.name,''), NULLIF(ct.push_name,''), NULLIF(ct.name,''), c.jid) AS display_name,
	c.is_group, c.archived, c.unread_count, c.last_message_id, c.last_message_at,
	c.last_message_preview, c.last_message_from_me`

func scanChat(row interface{ Scan(...any) error }) (Chat, error) {
	var c Chat
	err := row.Scan(&c.JID, &c.Name, &c.IsGroup, &c.Archived, &c.UnreadCount,
		&c.LastMessageID, &c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageFromMe)
	return c, err
}

// UpsertChat inserts or updates a chat's metadata. An empty name keeps the
// stored one; the last-message summary only moves forward in time.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, is_group, archived, unread_count, last_message_id,
			last_message_at, last_message_preview, last_message_from_me, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			is_group = excluded.is_group,
			archived = excluded.archived,
			unread_count = excluded.unread_count,
			last_message_id = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_id ELSE chats.last_message_id END,
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_from_me = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_from_me ELSE chats.last_message_from_me END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.JID, c.Name, c.IsGroup, c.Archived, c.UnreadCount, c.LastMessageID,
		c.LastMessageAt, c.LastMessagePreview, c.LastMessageFromMe, now)
	return err
}

// TouchChat records a new message on a chat, creating the chat when needed.
// Unread is incremented for inbound messages; older messages never replace
// the summary.
func (db *DB) TouchChat(jid string, isGroup bool, m *Message) error {
	unread := 0
	if !m.FromMe {
		unread = 1
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (jid, is_group, unread_count, last_message_id, last_message_at,
			last_message_preview, last_message_from_me, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			unread_count = CASE WHEN excluded.last_message_from_me THEN chats.unread_count ELSE chats.unread_count + 1 END,
			last_message_id = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_id ELSE chats.last_message_id END,
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_from_me = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_from_me ELSE chats.last_message_from_me END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		jid, isGroup, unread, m.MsgID, m.Timestamp, m.Body, m.FromMe, now)
	return err
}

// SetChatArchived sets the archived flag, creating the chat when needed.
func (db *DB) SetChatArchived(jid string, archived bool) error {
	_, err := db.Exec(`
		INSERT INTO chats (jid, archived, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET archived = excluded.archived, updated_at = excluded.updated_at`,
		jid, archived, time.Now().UnixMilli())
	return err
}

// ResetUnread zeroes a chat's unread counter.
func (db *DB) ResetUnread(jid string) error {
	_, err := db.Exec(`UPDATE chats SET unread_count = 0 WHERE jid = ?`, jid)
	return err
}

// SetChatPreview overwrites the summary body when it refers to msgID.
func (db *DB) SetChatPreview(jid, msgID, body string) error {
	_, err := db.Exec(`UPDATE chats SET last_message_preview = ? WHERE jid = ? AND last_message_id = ?`, body, jid, msgID)
	return err
}

// ListChats returns chats sorted by last message timestamp descending.
// Names resolve chat.name -> contact.push_name -> contact.name -> chat.jid.
// limit <= 0 returns every chat.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid NOT LIKE '%@lid'
		ORDER BY c.last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil when absent.
func (db *DB) GetChat(jid string) (*Chat, error) {
	c, err := scanChat(db.QueryRow(`
		SELECT `+chatColumns+`
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid = ?`, jid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
