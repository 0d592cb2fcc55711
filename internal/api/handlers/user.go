package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/models"
)

// UserService service.UserService
type UserService interface {
	SaveUser(ctx context.Context, req *models.SaveUserRequest) (*models.User, bool, error)
	GetUser(ctx context.Context, clerkID string) (*models.User, error)
	UpdateUsername(ctx context.Context, clerkID, username string) (*models.User, error)
}

type UserHandler struct {
	userService UserService
}

func NewUserHandler(userService UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// SaveUser 로그인 시 사용자 동기화. 새로 만들면 201, 이미 있으면 200
func (h *UserHandler) SaveUser(c *gin.Context) {
	var req models.SaveUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	user, created, err := h.userService.SaveUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to save user")
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "User already exists",
			"user":    user,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user})
}

// GetUser clerk ID로 사용자 조회
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), c.Param("clerkId"))
	if err != nil {
		respondError(c, err, "Failed to get user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// UpdateUsername 사용자명 변경
func (h *UserHandler) UpdateUsername(c *gin.Context) {
	var req models.UpdateUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	user, err := h.userService.UpdateUsername(c.Request.Context(), req.ClerkID, req.Username)
	if err != nil {
		respondError(c, err, "Failed to update username")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}
