package users

import (
	"fmt"
	"time"

	"github.com/ecolix/ecolix/internal/platform/httpx"
)

// User represents a user account for management.
type User struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	SchoolLevel string    `json:"school_level,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilter narrows ListUsers. TenantID zero lists every school.
type ListFilter struct {
	TenantID    int64
	Role        string
	SchoolLevel string
}

var (
	// ErrNotFound is returned when the user does not exist or is hidden from the actor.
	ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)
	// ErrInvalid wraps input validation failures.
	ErrInvalid = fmt.Errorf("users: %w", httpx.ErrValidation)
	// ErrForbidden covers role changes the actor may not perform.
	ErrForbidden = fmt.Errorf("users: %w", httpx.ErrForbidden)
)
