package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupDB TEST_DATABASE_URL 이 없으면 건너뜀
func setupDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, database.Migrate(url, zap.NewNop()))

	db, err := database.Connect(context.Background(), url)
	require.NoError(t, err)

	_, err = db.Exec(`TRUNCATE users, user_ratings, battle_history, battle_participants CASCADE`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserRepository_CreateIfAbsent(t *testing.T) {
	db := setupDB(t)
	repo := NewUserRepository(db, 1000)
	ctx := context.Background()

	clerkID := "user_" + uuid.NewString()
	user, created, err := repo.CreateIfAbsent(ctx, &models.SaveUserRequest{
		ClerkID:  clerkID,
		Username: "alice",
		Email:    clerkID + "@example.com",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1000, user.Rating)

	again, created, err := repo.CreateIfAbsent(ctx, &models.SaveUserRequest{ClerkID: clerkID, Email: "x@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	missing, err := repo.FindByClerkID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_RatingsFollowRename(t *testing.T) {
	db := setupDB(t)
	repo := NewUserRepository(db, 1000)
	ctx := context.Background()

	_, _, err := repo.CreateIfAbsent(ctx, &models.SaveUserRequest{ClerkID: "c1", Username: "alice", Email: "c1@example.com"})
	require.NoError(t, err)

	_, ok, err := repo.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetRating(ctx, "alice", 1100))
	require.NoError(t, repo.SetRating(ctx, "alice", 1120))

	user, err := repo.UpdateUsername(ctx, "c1", "alicia")
	require.NoError(t, err)
	assert.Equal(t, "alicia", user.Username)
	assert.Equal(t, 1120, user.Rating)

	missing, err := repo.UpdateUsername(ctx, "c404", "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBattleRepository_SaveAndQuery(t *testing.T) {
	db := setupDB(t)
	repo := NewBattleRepository(db)
	ctx := context.Background()

	started := time.Now().Add(-5 * time.Minute).UTC().Truncate(time.Second)
	record := &models.BattleRecord{
		RoomID:        "alice_bob_123456",
		Question:      "q",
		Topic:         "DSA",
		AverageRating: 1020,
		BattleStarted: started,
		BattleEnded:   started.Add(5 * time.Minute),
		Users: []models.BattleUser{
			{Username: "alice", Code: "a", FinalRating: 1020, RatingChange: 20, Analysis: "good"},
			{Username: "bob", Code: "b", FinalRating: 1045, RatingChange: 5, Analysis: "slow"},
		},
		DurationSeconds: 300,
	}
	require.NoError(t, repo.Save(ctx, record))

	// 같은 방은 한 번만 저장
	duplicate := *record
	require.NoError(t, repo.Save(ctx, &duplicate))

	count, err := repo.CountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := repo.FindByUsername(ctx, "bob", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Users, 2)
	assert.Equal(t, "alice", records[0].Users[0].Username)
	assert.Equal(t, 300, records[0].DurationSeconds)

	recent, err := repo.FindRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 5, recent[0].Users[1].RatingChange)

	results, err := repo.ResultsByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1020, results[0].FinalRating)
}
