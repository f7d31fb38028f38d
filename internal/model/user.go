package model

import "time"

// Student is an exam-taking user.
type Student struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Proctor is an elevated user who may read across sessions and terminate them.
type Proctor struct {
	ID           int      `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	PasswordHash string   `json:"-"`
	Permissions  []string `json:"permissions"`
}

// Proctor permission codes embedded in JWT claims.
const (
	PermissionSessionsRead      = "sessions:read"
	PermissionSessionsTerminate = "sessions:terminate"
	PermissionResultsRead       = "results:read"
)

// StudentLoginRequest is the student login payload.
type StudentLoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// ProctorLoginRequest is the proctor login payload.
type ProctorLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}
