package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sync/internal/domain"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// ProfileRepository reads submitter profiles from user_master.
type ProfileRepository interface {
	FindProfile(ctx context.Context, userID string) (domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository builds the repository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func profileQuery(userID string) (string, []interface{}, error) {
	return psql.Select("user_id", "full_name", "phone_no").
		From("user_master").
		Where(sq.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
}

// FindProfile returns a NotFound error when the user has no row.
func (r *profileRepository) FindProfile(ctx context.Context, userID string) (domain.Profile, error) {
	query, args, err := profileQuery(userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("build profile query: %w", err)
	}
	var p domain.Profile
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&p.UserID, &p.FullName, &p.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, apperrors.NewNotFound("profile", map[string]any{"user_id": userID})
		}
		return domain.Profile{}, err
	}
	return p, nil
}
