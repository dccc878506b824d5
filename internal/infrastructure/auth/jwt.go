package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/config"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingAgencyID  = errors.New("missing agency_id in claims")
	ErrMissingSellerID  = errors.New("missing seller_id in claims")
	ErrInvalidRole      = errors.New("invalid role in claims")
)

// Claims identifies the seller a request acts for
type Claims struct {
	jwt.RegisteredClaims
	AgencyID  string       `json:"agency_id"`
	SellerID  string       `json:"seller_id"`
	Username  string       `json:"username"`
	Role      tenancy.Role `json:"role"`
	TokenType TokenType    `json:"token_type"`
}

// JWTService signs and validates HS256 access tokens
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.SecurityConfig) *JWTService {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// GenerateTokenInput contains input for token generation
type GenerateTokenInput struct {
	AgencyID uuid.UUID
	SellerID uuid.UUID
	Username string
	Role     tenancy.Role
}

// GenerateAccessToken signs an access token for a seller
func (s *JWTService) GenerateAccessToken(input GenerateTokenInput) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.SellerID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		AgencyID:  input.AgencyID.String(),
		SellerID:  input.SellerID.String(),
		Username:  input.Username,
		Role:      input.Role,
		TokenType: TokenTypeAccess,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	if claims.AgencyID == "" {
		return nil, ErrMissingAgencyID
	}
	if claims.SellerID == "" {
		return nil, ErrMissingSellerID
	}
	if _, err := claims.AgencyUUID(); err != nil {
		return nil, ErrInvalidClaims
	}
	if _, err := claims.SellerUUID(); err != nil {
		return nil, ErrInvalidClaims
	}
	if !claims.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	return claims, nil
}

// AgencyUUID parses the agency ID
func (c *Claims) AgencyUUID() (uuid.UUID, error) {
	return uuid.Parse(c.AgencyID)
}

// SellerUUID parses the seller ID
func (c *Claims) SellerUUID() (uuid.UUID, error) {
	return uuid.Parse(c.SellerID)
}

// IsAgencyAdmin reports whether the token grants agency administration
func (c *Claims) IsAgencyAdmin() bool {
	return c.Role == tenancy.RoleAgencyAdmin
}
