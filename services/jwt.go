package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/golang-jwt/jwt/v5"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/shared"
)

// JWTService only verifies tokens on the admission path. Issuance belongs to
// the auth backend; ToJWT exists for the CLI and tests.
type JWTService struct {
	context.DefaultService

	AccessTokenDuration time.Duration
	jwtSecretKey        string
	issuer              string
}

type CustomClaims struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

const JWT_SVC = "jwt_svc"

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		AccessTokenDuration: 24 * time.Hour,
		jwtSecretKey:        secret,
		issuer:              "ToolShare",
	}
}

func (svc *JWTService) Id() string {
	return JWT_SVC
}

func (svc *JWTService) Configure(ctx *context.Context) error {
	svc.AccessTokenDuration = 24 * time.Hour
	svc.jwtSecretKey = os.Getenv("JWT_SECRET")
	svc.issuer = "ToolShare"
	return svc.DefaultService.Configure(ctx)
}

func (svc *JWTService) Start() error {
	if svc.jwtSecretKey == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// Verify parses and validates a bearer token. Every failure maps to
// shared.ErrInvalidToken so callers cannot leak why a token was rejected.
func (svc *JWTService) Verify(jwtToken string) (*dto.VerifiedToken, error) {
	if jwtToken == "" {
		return nil, shared.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(jwtToken, &CustomClaims{}, svc.getJWTKey, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || claims == nil || claims.UserID == "" {
		return nil, shared.ErrInvalidToken
	}

	verified := &dto.VerifiedToken{
		Subject: claims.UserID,
		IsAdmin: claims.IsAdmin,
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}

func (svc *JWTService) getJWTKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	return []byte(svc.jwtSecretKey), nil
}

func (svc *JWTService) ToJWT(userID string, isAdmin bool, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = svc.AccessTokenDuration
	}
	now := time.Now()

	claims := &CustomClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    svc.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(svc.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

func (svc *JWTService) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", errors.New("invalid authorization header format")
	}

	return authHeader[7:], nil
}
