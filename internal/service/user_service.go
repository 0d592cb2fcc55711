package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl-arena/codebattle-backend/internal/models"
	"go.uber.org/zap"
)

// UserStore 사용자/레이팅 저장소 (repository.UserRepository)
type UserStore interface {
	FindByClerkID(ctx context.Context, clerkID string) (*models.User, error)
	CreateIfAbsent(ctx context.Context, req *models.SaveUserRequest) (*models.User, bool, error)
	UpdateUsername(ctx context.Context, clerkID, username string) (*models.User, error)
	GetRating(ctx context.Context, username string) (int, bool, error)
	SetRating(ctx context.Context, username string, rating int) error
}

type UserService struct {
	users         UserStore
	defaultRating int
	logger        *zap.Logger
}

func NewUserService(users UserStore, defaultRating int, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, defaultRating: defaultRating, logger: logger}
}

// SaveUser clerk ID 기준으로 없을 때만 생성. created는 새로 만들었는지 여부
func (s *UserService) SaveUser(ctx context.Context, req *models.SaveUserRequest) (*models.User, bool, error) {
	req.ClerkID = strings.TrimSpace(req.ClerkID)
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.ClerkID == "" || req.Email == "" {
		return nil, false, ErrInvalidInput
	}

	user, created, err := s.users.CreateIfAbsent(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save user: %w", err)
	}
	if user == nil {
		return nil, false, ErrUserNotFound
	}

	if created {
		s.logger.Info("User created", zap.String("clerkId", user.ClerkID), zap.String("username", user.Username))
	}
	return user, created, nil
}

// GetUser clerk ID로 사용자 조회
func (s *UserService) GetUser(ctx context.Context, clerkID string) (*models.User, error) {
	user, err := s.users.FindByClerkID(ctx, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUsername 사용자명 변경
func (s *UserService) UpdateUsername(ctx context.Context, clerkID, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if clerkID == "" || username == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.UpdateUsername(ctx, clerkID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to update username: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetRating 레이팅 조회. 기록이 없으면 기본 레이팅
func (s *UserService) GetRating(ctx context.Context, username string) (int, error) {
	rating, ok, err := s.users.GetRating(ctx, username)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.defaultRating, nil
	}
	return rating, nil
}

// SetRating 레이팅 저장
func (s *UserService) SetRating(ctx context.Context, username string, rating int) error {
	return s.users.SetRating(ctx, username, rating)
}
