package model

import (
	"time"
)

// UserState is the lifecycle state of a user row. Deleted users are kept
// (soft delete) and only flagged.
type UserState string

const (
	StateActive  UserState = "active"
	StateDeleted UserState = "deleted"
)

type User struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Username       string    `gorm:"size:255;not null;uniqueIndex"`
	HashedPassword string    `gorm:"size:255;not null"`
	Fullname       *string   `gorm:"size:255"`
	Email          *string   `gorm:"size:255;uniqueIndex"`
	RefreshToken   *string   `gorm:"size:1024"`
	IsSuperuser    bool      `gorm:"not null;default:false"`
	State          UserState `gorm:"size:16;not null;default:active;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (User) TableName() string { return "users" }

func (u User) IsDeleted() bool { return u.State == StateDeleted }

// Public strips credentials and the stored refresh token.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Fullname:    u.Fullname,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
	}
}

func (u User) TokenUser() TokenUser {
	return TokenUser{
		ID:          u.ID,
		Username:    u.Username,
		IsSuperuser: u.IsSuperuser,
		IsDeleted:   u.IsDeleted(),
	}
}

// TokenUser is the identity carried inside access and refresh tokens.
type TokenUser struct {
	ID          int64  `json:"id" mapstructure:"id"`
	Username    string `json:"username" mapstructure:"username"`
	IsSuperuser bool   `json:"is_superuser" mapstructure:"is_superuser"`
	IsDeleted   bool   `json:"is_deleted" mapstructure:"is_deleted"`
}

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

const BearerTokenType = "Bearer"

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type PublicUser struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email"`
	Fullname    *string   `json:"fullname"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

type PageInfo struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	Size     int   `json:"size"`
	First    int   `json:"first"`
	Last     int   `json:"last"`
	Previous *int  `json:"previous"`
	Next     *int  `json:"next"`
}

type Page struct {
	PageInfo PageInfo     `json:"page_info"`
	PageData []PublicUser `json:"page_data"`
}
