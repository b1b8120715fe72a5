package store

import (
	"time"
)

// MarkConversationOpen records that a conversation view is open so the
// daemon can reopen it after a restart.
func (db *DB) MarkConversationOpen(id string) error {
	_, err := db.Exec(`
		INSERT INTO open_conversations (conversation_id, opened_at)
		VALUES (?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		id, time.Now().UnixMilli())
	return err
}

// MarkConversationClosed forgets an open conversation.
func (db *DB) MarkConversationClosed(id string) error {
	_, err := db.Exec(`DELETE FROM open_conversations WHERE conversation_id = ?`, id)
	return err
}

// OpenConversations returns the recorded open conversations, oldest first.
func (db *DB) OpenConversations() ([]string, error) {
	rows, err := db.Query(`SELECT conversation_id FROM open_conversations ORDER BY opened_at, conversation_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
