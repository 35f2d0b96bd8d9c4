package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when a token's signature is valid but its
// lifetime has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for malformed tokens, wrong signatures, and
// tokens signed with the wrong secret family.
var ErrTokenInvalid = errors.New("invalid token")

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Config holds issuer settings. Secrets must be distinct; the constructor
// enforces this.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Issuer mints and verifies HS256-signed access and refresh tokens.
type Issuer struct {
	config Config
}

// Pair is one access token and one refresh token minted together.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Issuer{config: cfg}, nil
}

// IssuePair mints a fresh access+refresh pair for the user.
func (i *Issuer) IssuePair(userID, email string) (Pair, error) {
	access, err := i.sign(userID, email, i.config.AccessSecret, i.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(userID, email, i.config.RefreshSecret, i.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess mints an access token only. Used by the refresh flow, which
// does not rotate refresh tokens.
func (i *Issuer) IssueAccess(userID, email string) (string, error) {
	return i.sign(userID, email, i.config.AccessSecret, i.config.AccessTTL)
}

// VerifyAccess parses and validates an access token.
func (i *Issuer) VerifyAccess(tokenStr string) (*Claims, error) {
	return i.verify(tokenStr, i.config.AccessSecret)
}

// VerifyRefresh parses and validates a refresh token.
func (i *Issuer) VerifyRefresh(tokenStr string) (*Claims, error) {
	return i.verify(tokenStr, i.config.RefreshSecret)
}

// RefreshTTL reports the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.config.RefreshTTL }

func (i *Issuer) sign(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (i *Issuer) verify(tokenStr string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
