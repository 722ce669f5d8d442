package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/firefly-mesh/firefly/pkg/models"
)

var selectMessages = `
SELECT m.message_id, m.packet_id, m.channel, m.sender_num, m.sender_display,
       m.content, m.timestamp, m.direction, m.hop_limit, m.hop_start,
       m.rx_snr, m.rx_rssi
FROM messages m`

type MessageStore interface {
	Store(msg *models.Message) error
	GetForChannel(channel uint32, limit int) ([]*models.Message, error)
}

type postgresMessageStore struct {
	db *sqlx.DB
}

func NewMessages(dbconn *sqlx.DB) MessageStore {
	return &postgresMessageStore{db: dbconn}
}

func (s *postgresMessageStore) Store(msg *models.Message) error {
	stmt := `
	INSERT INTO messages (message_id, packet_id, channel, sender_num, sender_display,
	                      content, timestamp, direction, hop_limit, hop_start, rx_snr, rx_rssi)
	VALUES (:message_id, :packet_id, :channel, :sender_num, :sender_display,
	        :content, :timestamp, :direction, :hop_limit, :hop_start, :rx_snr, :rx_rssi);
	`

	_, err := s.db.NamedExec(stmt, msg)
	return err
}

// GetForChannel returns the most recent messages for a channel in
// chronological order.
func (s *postgresMessageStore) GetForChannel(channel uint32, limit int) ([]*models.Message, error) {
	stmt := selectMessages + ` WHERE m.channel = $1 ORDER BY m.timestamp DESC LIMIT $2;`
	messages := []*models.Message{}
	err := s.db.Select(&messages, stmt, channel, limit)
	if err == sql.ErrNoRows {
		return messages, nil
	}
	if err != nil {
		return nil, err
	}

	// The query reads newest-first so LIMIT keeps the newest rows.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
