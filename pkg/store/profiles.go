package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/firefly-mesh/firefly/pkg/models"
)

var selectProfiles = `SELECT p.* FROM profiles p`

type ProfileStore interface {
	GetByID(id string) (*models.Profile, error)
	GetAll() ([]*models.Profile, error)
	Create(profile *models.Profile) error
	Update(profile *models.Profile) error
	Delete(id string) error
}

type postgresProfileStore struct {
	db *sqlx.DB
}

func NewProfiles(dbconn *sqlx.DB) ProfileStore {
	return &postgresProfileStore{db: dbconn}
}

func (s *postgresProfileStore) GetByID(id string) (*models.Profile, error) {
	stmt := selectProfiles + " WHERE p.id = $1;"
	var profile models.Profile
	err := s.db.Get(&profile, stmt, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &profile, err
}

func (s *postgresProfileStore) GetAll() ([]*models.Profile, error) {
	stmt := selectProfiles + " ORDER BY p.created_at DESC;"
	profiles := []*models.Profile{}
	err := s.db.Select(&profiles, stmt)
	if err == sql.ErrNoRows {
		return profiles, nil
	}
	return profiles, err
}

func (s *postgresProfileStore) Create(profile *models.Profile) error {
	stmt := `
	INSERT INTO profiles (id, node_id, long_name, short_name, channel, key, hop_limit)
	VALUES (:id, :node_id, :long_name, :short_name, :channel, :key, :hop_limit);
	`

	_, err := s.db.NamedExec(stmt, profile)
	return err
}

func (s *postgresProfileStore) Update(profile *models.Profile) error {
	stmt := `
	UPDATE profiles
	SET node_id = :node_id,
	    long_name = :long_name,
	    short_name = :short_name,
	    channel = :channel,
	    key = :key,
	    hop_limit = :hop_limit,
	    updated_at = now()
	WHERE id = :id;
	`

	_, err := s.db.NamedExec(stmt, profile)
	return err
}

func (s *postgresProfileStore) Delete(id string) error {
	stmt := `DELETE FROM profiles WHERE id = $1;`

	_, err := s.db.Exec(stmt, id)
	return err
}
