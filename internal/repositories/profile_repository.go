package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository reads user display identities.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	BulkProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfile fetches one profile by user id.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile,
		`SELECT id, username, created_at FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, gatewayError(err)
}

// BulkProfiles fetches multiple profiles in one query. Missing ids are
// simply absent from the result.
func (r *ProfileRepo) BulkProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	if len(userIDs) == 0 {
		return []models.Profile{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, created_at FROM profiles WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	err = r.db.SelectContext(ctx, &profiles, r.db.Rebind(query), args...)
	return profiles, gatewayError(err)
}
