package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/firefly-mesh/firefly/pkg/models"
)

var selectNodes = `SELECT n.* FROM nodes n`

type NodeStore interface {
	// Upsert inserts the node or merges it into the existing record for
	// (channel, node_num). Known fields win over empty ones and the packet
	// counter increments on every call.
	Upsert(node *models.Node) error
	Get(channel, nodeNum uint32) (*models.Node, error)
	GetForChannel(channel uint32) ([]*models.Node, error)
}

type postgresNodeStore struct {
	db *sqlx.DB
}

func NewNodes(dbconn *sqlx.DB) NodeStore {
	return &postgresNodeStore{db: dbconn}
}

func (s *postgresNodeStore) Upsert(node *models.Node) error {
	stmt := `
	INSERT INTO nodes (channel, node_num, node_id, long_name, short_name,
	                   macaddr, hw_model, role, public_key)
	VALUES (:channel, :node_num, :node_id, :long_name, :short_name,
	        :macaddr, :hw_model, :role, :public_key)
	ON CONFLICT (channel, node_num)
	DO UPDATE SET
		node_id = COALESCE(NULLIF(EXCLUDED.node_id, ''), nodes.node_id),
		long_name = COALESCE(NULLIF(EXCLUDED.long_name, ''), nodes.long_name),
		short_name = COALESCE(NULLIF(EXCLUDED.short_name, ''), nodes.short_name),
		macaddr = COALESCE(EXCLUDED.macaddr, nodes.macaddr),
		hw_model = COALESCE(NULLIF(EXCLUDED.hw_model, ''), nodes.hw_model),
		role = COALESCE(NULLIF(EXCLUDED.role, ''), nodes.role),
		public_key = COALESCE(EXCLUDED.public_key, nodes.public_key),
		last_seen = now(),
		packet_count = nodes.packet_count + 1
	;`

	_, err := s.db.NamedExec(stmt, node)
	return err
}

func (s *postgresNodeStore) Get(channel, nodeNum uint32) (*models.Node, error) {
	stmt := selectNodes + " WHERE n.channel = $1 AND n.node_num = $2;"
	var node models.Node
	err := s.db.Get(&node, stmt, channel, nodeNum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *postgresNodeStore) GetForChannel(channel uint32) ([]*models.Node, error) {
	stmt := selectNodes + " WHERE n.channel = $1 ORDER BY n.last_seen DESC;"
	nodes := []*models.Node{}
	err := s.db.Select(&nodes, stmt, channel)
	if err == sql.ErrNoRows {
		return nodes, nil
	}
	return nodes, err
}
