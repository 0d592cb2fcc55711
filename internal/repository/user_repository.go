package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/pkg/database"
)

type UserRepository struct {
	db            *database.DB
	defaultRating int
}

func NewUserRepository(db *database.DB, defaultRating int) *UserRepository {
	return &UserRepository{db: db, defaultRating: defaultRating}
}

const selectUser = `
	SELECT u.id, u.clerk_id, u.username, u.full_name, u.email, u.image_url,
	       COALESCE(r.rating, $1), u.created_at, u.updated_at
	FROM users u
	LEFT JOIN user_ratings r ON r.username = u.username
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.ClerkID,
		&user.Username,
		&user.FullName,
		&user.Email,
		&user.ImageURL,
		&user.Rating,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByClerkID clerk ID로 사용자 찾기 (없으면 nil)
func (r *UserRepository) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE u.clerk_id = $2`, r.defaultRating, clerkID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateIfAbsent clerk ID가 없을 때만 생성. 이미 있으면 기존 사용자와 false 반환
func (r *UserRepository) CreateIfAbsent(ctx context.Context, req *models.SaveUserRequest) (*models.User, bool, error) {
	createdAt := time.Now()
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	query := `
		INSERT INTO users (clerk_id, username, full_name, email, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (clerk_id) DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		req.ClerkID, req.Username, req.FullName, req.Email, req.ImageURL, createdAt,
	).Scan(&id)

	created := true
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := r.FindByClerkID(ctx, req.ClerkID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

// UpdateUsername 사용자명 변경. 레이팅 기록도 새 이름으로 옮긴다. 사용자가 없으면 nil
func (r *UserRepository) UpdateUsername(ctx context.Context, clerkID, username string) (*models.User, error) {
	found := true
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var previous string
		err := tx.QueryRowContext(ctx,
			`SELECT username FROM users WHERE clerk_id = $1 FOR UPDATE`, clerkID,
		).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET username = $1, updated_at = NOW() WHERE clerk_id = $2`,
			username, clerkID,
		); err != nil {
			return fmt.Errorf("failed to update username: %w", err)
		}

		if previous == "" || previous == username {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE user_ratings SET username = $1, updated_at = NOW()
			WHERE username = $2
			  AND NOT EXISTS (SELECT 1 FROM user_ratings WHERE username = $1)
		`, username, previous)
		if err != nil {
			return fmt.Errorf("failed to move rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return r.FindByClerkID(ctx, clerkID)
}

// GetRating username의 레이팅 (기록이 없으면 false)
func (r *UserRepository) GetRating(ctx context.Context, username string) (int, bool, error) {
	var rating int
	err := r.db.QueryRowContext(ctx,
		`SELECT rating FROM user_ratings WHERE username = $1`, username,
	).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rating: %w", err)
	}
	return rating, true, nil
}

// SetRating 레이팅 저장 (upsert)
func (r *UserRepository) SetRating(ctx context.Context, username string, rating int) error {
	query := `
		INSERT INTO user_ratings (username, rating)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET rating = EXCLUDED.rating, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, username, rating); err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	return nil
}
