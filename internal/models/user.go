package models

import "time"

// User 외부 인증 공급자(clerk)에서 동기화된 사용자 프로필
type User struct {
	ID        string    `json:"id" db:"id"`
	ClerkID   string    `json:"clerkId" db:"clerk_id"`
	Username  string    `json:"username" db:"username"`
	FullName  string    `json:"fullName" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	ImageURL  *string   `json:"imageUrl,omitempty" db:"image_url"`
	Rating    int       `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type SaveUserRequest struct {
	ClerkID   string     `json:"clerkId" binding:"required"`
	Username  string     `json:"username"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email" binding:"required"`
	ImageURL  *string    `json:"imageUrl"`
	CreatedAt *time.Time `json:"createdAt"`
}

type UpdateUsernameRequest struct {
	ClerkID  string `json:"clerkId" binding:"required"`
	Username string `json:"username" binding:"required"`
}
