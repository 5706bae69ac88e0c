package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService signs and verifies the gateway's JWTs. Tokens are signed, not
// encrypted: claims are readable by anyone holding a token, so they must
// never carry secrets.
type TokenService struct {
	secretKey  []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a new instance of the TokenService.
func NewTokenService(secretKey, issuer string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	return &TokenService{
		secretKey:  []byte(secretKey),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL is the lifetime stamped into access tokens. Sessions share it.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// TokenPair is what a successful login returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access-token lifetime, seconds
}

// IssuePair mints an access token carrying the full identity and a refresh
// token carrying only the subject/tenant pair.
func (s *TokenService) IssuePair(userID, tenantID, role string, permissions []string) (*TokenPair, error) {
	access, err := s.sign(Claims{
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		Permissions: permissions,
		TokenType:   AccessToken,
	}, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(Claims{
		UserID:    userID,
		TenantID:  tenantID,
		TokenType: RefreshToken,
	}, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// IssueAccess mints a fresh access token only, used by the refresh flow.
func (s *TokenService) IssueAccess(userID, tenantID, role string, permissions []string) (string, error) {
	return s.sign(Claims{
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		Permissions: permissions,
		TokenType:   AccessToken,
	}, s.accessTTL)
}

func (s *TokenService) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// VerifyAccess validates a token and requires its type marker to be
// "access". Fails with ErrExpiredCredential or ErrMalformedCredential; a
// refresh token presented here fails closed as malformed.
func (s *TokenService) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verify(tokenString, AccessToken)
}

// VerifyRefresh validates a token and requires its type marker to be
// "refresh", so access tokens cannot be replayed as refresh tokens.
func (s *TokenService) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.verify(tokenString, RefreshToken)
}

func (s *TokenService) verify(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrMalformedCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformedCredential
	}
	if claims.TokenType != want {
		return nil, ErrMalformedCredential
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, ErrMalformedCredential
	}
	return claims, nil
}

// keyFunc pins the signing method to HMAC before releasing the key.
func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secretKey, nil
}
