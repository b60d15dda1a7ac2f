package store

// SearchMessages performs a full-text search on message bodies, newest first.
// chatJID narrows the search to one chat when non-empty.
func (db *DB) SearchMessages(query string, chatJID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.chat_jid, m.msg_id, m.sender_jid, m.sender_name, m.body,
		       m.message_type, m.has_media, m.mime_type, m.filename, m.from_me, m.status, m.timestamp,
		       snippet(messages_fts, '<<', '>>', '...', -1, 32)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatJID != "" {
		q += " AND m.chat_jid = ?"
		args = append(args, chatJID)
	}
	q += " ORDER BY m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		m := &r.Message
		if err := rows.Scan(
			&m.ID, &m.ChatJID, &m.MsgID, &m.SenderJID, &m.SenderName, &m.Body,
			&m.MessageType, &m.HasMedia, &m.MimeType, &m.Filename, &m.FromMe, &m.Status,
			&m.Timestamp, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
