package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// Postgres persists study groups, their attributes and membership.
//
// Tables:
//
//	study_groups            (id TEXT PRIMARY KEY, name TEXT NOT NULL)
//	study_group_attributes  (group_id TEXT, key TEXT, value TEXT, PRIMARY KEY (group_id, key))
//	study_group_members     (group_id TEXT, user_id UUID, PRIMARY KEY (group_id, user_id))
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByID(ctx context.Context, id domain.StudyID) (*study.Group, error) {
	g := &study.Group{ID: id, Attributes: make(map[string]string)}

	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM study_groups WHERE id = $1`, string(id),
	).Scan(&g.Name)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find study group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM study_group_attributes WHERE group_id = $1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load group attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan group attribute: %w", err)
		}
		g.Attributes[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group attributes: %w", err)
	}
	return g, nil
}

func (s *Postgres) MemberCount(ctx context.Context, id domain.StudyID) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM study_groups WHERE id = $1)`, string(id),
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check study group: %w", err)
	}
	if !exists {
		return 0, sentinel.ErrNotFound
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM study_group_members WHERE group_id = $1`, string(id),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count study members: %w", err)
	}
	return count, nil
}

func (s *Postgres) AddMember(ctx context.Context, id domain.StudyID, userID domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO study_group_members (group_id, user_id)
		SELECT id, $2 FROM study_groups WHERE id = $1
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, string(id), userID.String())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("add study member: %w", err)
	}
	// Zero rows with no conflict means the group row was missing.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if exists, checkErr := s.groupExists(ctx, id); checkErr == nil && !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func (s *Postgres) SetAttribute(ctx context.Context, id domain.StudyID, key, value string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO study_group_attributes (group_id, key, value)
		SELECT id, $2, $3 FROM study_groups WHERE id = $1
		ON CONFLICT (group_id, key) DO UPDATE SET value = EXCLUDED.value
	`, string(id), key, value)
	if err != nil {
		return fmt.Errorf("set group attribute: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) RemoveAttribute(ctx context.Context, id domain.StudyID, key string) error {
	if exists, err := s.groupExists(ctx, id); err != nil {
		return err
	} else if !exists {
		return sentinel.ErrNotFound
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM study_group_attributes WHERE group_id = $1 AND key = $2`,
		string(id), key)
	if err != nil {
		return fmt.Errorf("remove group attribute: %w", err)
	}
	return nil
}

func (s *Postgres) groupExists(ctx context.Context, id domain.StudyID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM study_groups WHERE id = $1)`, string(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check study group: %w", err)
	}
	return exists, nil
}
