package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProfileStore = (*ProfileRepo)(nil)

// ProfileRepo is the SQLite implementation of the ProfileStore port interface.
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates a new ProfileRepo backed by the given DB.
func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const profileColumns = `login, bio, twitter_username, website, nano_address, gh_sponsors, patreon_url,
	goal_title, goal_amount, goal_nano_address, goal_website, goal_description, updated_at`

// Get returns the profile for login. Returns nil, nil if no profile exists.
func (r *ProfileRepo) Get(ctx context.Context, login string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE login = ?`

	p, err := scanProfile(r.db.Reader.QueryRowContext(ctx, query, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", login, err)
	}

	return p, nil
}

// Save inserts or replaces the profile and stamps updated_at.
func (r *ProfileRepo) Save(ctx context.Context, p model.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			bio = excluded.bio,
			twitter_username = excluded.twitter_username,
			website = excluded.website,
			nano_address = excluded.nano_address,
			gh_sponsors = excluded.gh_sponsors,
			patreon_url = excluded.patreon_url,
			goal_title = excluded.goal_title,
			goal_amount = excluded.goal_amount,
			goal_nano_address = excluded.goal_nano_address,
			goal_website = excluded.goal_website,
			goal_description = excluded.goal_description,
			updated_at = excluded.updated_at
	`

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		p.Login, p.Bio, p.TwitterUsername, p.Website, p.NanoAddress, boolToInt(p.GHSponsors), p.PatreonURL,
		p.GoalTitle, p.GoalAmount, p.GoalNanoAddress, p.GoalWebsite, p.GoalDescription, formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.Login, err)
	}

	return nil
}

// ListAll returns every profile ordered by login.
func (r *ProfileRepo) ListAll(ctx context.Context) ([]model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY login`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

func scanProfile(s scanner) (*model.Profile, error) {
	var p model.Profile
	var ghSponsors int
	var updatedAt string

	err := s.Scan(
		&p.Login, &p.Bio, &p.TwitterUsername, &p.Website, &p.NanoAddress, &ghSponsors, &p.PatreonURL,
		&p.GoalTitle, &p.GoalAmount, &p.GoalNanoAddress, &p.GoalWebsite, &p.GoalDescription, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.GHSponsors = ghSponsors == 1
	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &p, nil
}
