package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrInvalidConfig = errors.New("invalid jwt configuration")
	ErrInvalidToken  = errors.New("invalid jwt token")
)

// Config configures a Manager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// AccessClaims are the claims of an access token.
type AccessClaims struct {
	UID           string   `json:"uid"`
	SID           string   `json:"sid,omitempty"`
	Username      string   `json:"username,omitempty"`
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	EmailVerified *bool    `json:"ev,omitempty"`
	jwt.RegisteredClaims
}

// Profile converts the claims into the persisted user profile.
func (c *AccessClaims) Profile() *credential.UserProfile {
	roles := append([]string{}, c.Roles...)
	var verified *bool
	if c.EmailVerified != nil {
		verified = credential.Verified(*c.EmailVerified)
	}
	return &credential.UserProfile{
		ID:            c.UID,
		Username:      c.Username,
		Name:          c.Name,
		Email:         c.Email,
		Roles:         roles,
		EmailVerified: verified,
	}
}

// Manager signs and parses access tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
	sign   any
	verify any
}

// NewManager validates cfg and resolves the signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access ttl must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway out of range", ErrInvalidConfig)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, fmt.Errorf("%w: hs256 requires a key of at least 32 bytes", ErrInvalidConfig)
		}
		m.method = jwt.SigningMethodHS256
		m.sign = cfg.PrivateKey
		m.verify = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.sign = priv
			if len(cfg.PublicKey) == 0 {
				m.verify = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify = pub
		}
		if m.verify == nil {
			return nil, fmt.Errorf("%w: ed25519 requires a key", ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}
	return m, nil
}

// Issue signs an access token for user.
func (m *Manager) Issue(user *credential.UserProfile, sid string) (string, error) {
	if m.sign == nil {
		return "", fmt.Errorf("%w: manager has no signing key", ErrInvalidConfig)
	}
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	now := time.Now()
	claims := AccessClaims{
		UID:           user.ID,
		SID:           sid,
		Username:      user.Username,
		Name:          user.Name,
		Email:         user.Email,
		Roles:         user.Roles,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.sign)
}

// Parse verifies tokenStr and returns its claims.
func (m *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verify, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}
