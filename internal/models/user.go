package models

import "time"

// User is the profile returned by /api/auth/me/.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Quota     *Quota    `json:"quota,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quota is the per-user usage limit metadata. A nil *Quota means unlimited.
type Quota struct {
	MaxProjects        int `json:"max_projects"`
	UsedProjects       int `json:"used_projects"`
	MaxBoxesPerProject int `json:"max_boxes_per_project"`
	MaxAssetsPerBox    int `json:"max_assets_per_box"`
}

// TokenPair is the credential pair issued on login and register.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type UserCreateRequest struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type UserLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}
