package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/internal/service"
	"github.com/rl-arena/codebattle-backend/internal/websocket"
	"github.com/rl-arena/codebattle-backend/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers struct {
	user    *models.User
	created bool
	err     error
}

func (s *stubUsers) SaveUser(ctx context.Context, req *models.SaveUserRequest) (*models.User, bool, error) {
	return s.user, s.created, s.err
}

func (s *stubUsers) GetUser(ctx context.Context, clerkID string) (*models.User, error) {
	return s.user, s.err
}

func (s *stubUsers) UpdateUsername(ctx context.Context, clerkID, username string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := *s.user
	u.Username = username
	return &u, nil
}

type stubBattles struct {
	limit, page int
	stats       *models.BattleStats
	err         error
}

func (s *stubBattles) GetUserBattles(ctx context.Context, username string, limit, page int) ([]*models.BattleRecord, *service.Pagination, error) {
	s.limit, s.page = limit, page
	if s.err != nil {
		return nil, nil, s.err
	}
	return []*models.BattleRecord{{RoomID: "alice_bob_100000"}}, &service.Pagination{Total: 1, Page: page, Limit: limit, Pages: 1}, nil
}

func (s *stubBattles) GetRecent(ctx context.Context, limit int) ([]*models.BattleSummary, error) {
	s.limit = limit
	return []*models.BattleSummary{}, s.err
}

func (s *stubBattles) GetStats(ctx context.Context, username string) (*models.BattleStats, error) {
	return s.stats, s.err
}

type stubCoordinator struct {
	stats service.CoordinatorStats
	err   error
}

func (s stubCoordinator) Stats(ctx context.Context) (service.CoordinatorStats, error) {
	return s.stats, s.err
}

type stubArchive struct{}

func (stubArchive) Stats(ctx context.Context) (*distributed.QueueStats, error) {
	return &distributed.QueueStats{Pending: 2, DeadLetter: 1}, nil
}

type stubHub struct{}

func (stubHub) Stats() websocket.HubStats { return websocket.HubStats{Connections: 4, Groups: 1} }

func perform(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func userRouter(users UserService) *gin.Engine {
	h := NewUserHandler(users)
	r := gin.New()
	r.POST("/save-user", h.SaveUser)
	r.GET("/getUser/:clerkId", h.GetUser)
	r.PUT("/update-username", h.UpdateUsername)
	return r
}

func TestUserHandler_SaveUser(t *testing.T) {
	user := &models.User{ClerkID: "user_1", Username: "alice", Email: "a@example.com"}

	tests := []struct {
		name       string
		stub       *stubUsers
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"created", &stubUsers{user: user, created: true}, `{"clerkId":"user_1","email":"a@example.com"}`, http.StatusCreated, ""},
		{"already exists", &stubUsers{user: user}, `{"clerkId":"user_1","email":"a@example.com"}`, http.StatusOK, "User already exists"},
		{"missing email", &stubUsers{user: user}, `{"clerkId":"user_1"}`, http.StatusBadRequest, ""},
		{"store failure", &stubUsers{err: errors.New("db down")}, `{"clerkId":"user_1","email":"a@example.com"}`, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := perform(userRouter(tt.stub), http.MethodPost, "/save-user", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
			}
			if w.Code >= 400 {
				assert.Equal(t, false, body["success"])
				assert.NotContains(t, w.Body.String(), "db down", "internal errors are not exposed")
			}
		})
	}
}

func TestUserHandler_GetUser(t *testing.T) {
	w, body := perform(userRouter(&stubUsers{err: service.ErrUserNotFound}), http.MethodGet, "/getUser/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body["error"])

	user := &models.User{ClerkID: "user_1", Username: "alice", Rating: 1040}
	w, body = perform(userRouter(&stubUsers{user: user}), http.MethodGet, "/getUser/user_1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	got := body["user"].(map[string]interface{})
	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, float64(1040), got["rating"])
}

func TestUserHandler_UpdateUsername(t *testing.T) {
	user := &models.User{ClerkID: "user_1", Username: "alice"}

	w, body := perform(userRouter(&stubUsers{user: user}), http.MethodPut, "/update-username", `{"clerkId":"user_1","username":"alicia"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alicia", body["user"].(map[string]interface{})["username"])

	w, _ = perform(userRouter(&stubUsers{err: service.ErrInvalidInput}), http.MethodPut, "/update-username", `{"clerkId":"user_1","username":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBattleHandler(t *testing.T) {
	stub := &stubBattles{stats: &models.BattleStats{TotalBattles: 3, WinRate: "66.7"}}
	h := NewBattleHandler(stub)
	r := gin.New()
	r.GET("/user/:username", h.GetUserBattles)
	r.GET("/recent", h.GetRecentBattles)
	r.GET("/stats/:username", h.GetStats)

	w, body := perform(r, http.MethodGet, "/user/alice?limit=5&page=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, stub.limit)
	assert.Equal(t, 2, stub.page)
	assert.Len(t, body["battles"], 1)
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total"])

	_, _ = perform(r, http.MethodGet, "/user/alice?limit=abc", "")
	assert.Equal(t, 10, stub.limit)
	assert.Equal(t, 1, stub.page)

	w, body = perform(r, http.MethodGet, "/recent", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, stub.limit)
	assert.NotNil(t, body["battles"])

	w, body = perform(r, http.MethodGet, "/stats/alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "66.7", body["stats"].(map[string]interface{})["winRate"])

	stub.err = errors.New("boom")
	w, body = perform(r, http.MethodGet, "/stats/alice", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch battle statistics", body["error"])
}

func TestMatchmakingHandler(t *testing.T) {
	coordinator := stubCoordinator{stats: service.CoordinatorStats{Waiting: 1, ActiveRooms: 2}}

	r := gin.New()
	r.GET("/stats", NewMatchmakingHandler(coordinator, stubArchive{}, stubHub{}).GetStats)
	w, body := perform(r, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["matchmaking"].(map[string]interface{})["waiting"])
	assert.Equal(t, float64(2), body["archiveQueue"].(map[string]interface{})["pending"])
	assert.Equal(t, float64(4), body["connections"].(map[string]interface{})["connections"])

	r = gin.New()
	r.GET("/stats", NewMatchmakingHandler(stubCoordinator{err: service.ErrCoordinatorStopped}, nil, nil).GetStats)
	w, body = perform(r, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, body, "archiveQueue")
}

func TestReadinessCheck(t *testing.T) {
	r := gin.New()
	r.GET("/ready", ReadinessCheck(map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}))

	w, body := perform(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "connection refused", checks["redis"])
}
