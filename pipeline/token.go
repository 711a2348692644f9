package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

var ErrInvalidToken = errors.New("invalid token")

// Tokens is returned to the client once the challenge is passed.
type Tokens struct {
	IDToken   string `json:"idToken"`
	TokenType string `json:"tokenType"`
	ExpiresIn int    `json:"expiresIn"`
}

// TokenSigner mints HS256 ID tokens.
type TokenSigner struct {
	key    []byte
	Issuer string
	TTL    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer using key. An empty key is replaced by a
// random one.
func NewTokenSigner(key []byte, issuer string, ttl time.Duration) *TokenSigner {
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSigner{key: key, Issuer: issuer, TTL: ttl, now: time.Now}
}

// Sign issues an ID token for username carrying the extra claims.
func (s *TokenSigner) Sign(username string, claims map[string]string) (*Tokens, error) {
	now := s.now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["sub"] = username
	mc["iss"] = s.Issuer
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(s.TTL).Unix()
	mc["jti"] = uuid.NewString()
	mc["token_use"] = "id"

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		IDToken:   signed,
		TokenType: "Bearer",
		ExpiresIn: int(s.TTL / time.Second),
	}, nil
}

// Parse validates a token minted by Sign and returns its claims.
func (s *TokenSigner) Parse(token string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if iss, _ := mc["iss"].(string); iss != s.Issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidToken, iss)
	}
	return mc, nil
}
