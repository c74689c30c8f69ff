package service

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

const tokenIssuer = "crisisguard-client"

// TokenService выпускает токены для console API (guardctl token).
type TokenService struct {
	privateKey *rsa.PrivateKey
}

func NewTokenService(privateKey *rsa.PrivateKey) *TokenService {
	return &TokenService{privateKey: privateKey}
}

func (s *TokenService) Issue(userID string, scopes []string, ttl time.Duration) (string, error) {
	set := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		set[sc] = true
	}

	now := time.Now()
	claims := &domain.ConsoleClaims{
		UserID: userID,
		Scopes: set,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
