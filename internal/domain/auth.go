package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ConsoleClaims — claims токена для локального console API.
type ConsoleClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "alerts.read": true, "agent.config": true
	jwt.RegisteredClaims
}
