package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// User service specific errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// Room coordinator specific errors
var (
	ErrRoomExists         = errors.New("room id already exists")
	ErrCoordinatorStopped = errors.New("room coordinator stopped")
)

// External collaborator errors
var (
	ErrEmptyQuestion = errors.New("question generator returned empty text")
)
