package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/MrEthical07/authstate/credential"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEdManager(t *testing.T, cfg Config) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg.SigningMethod = MethodEd25519
	cfg.PrivateKey = priv
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = time.Minute
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m, priv
}

func profile() *credential.UserProfile {
	return &credential.UserProfile{
		ID:            "u-1",
		Username:      "ana",
		Name:          "Ana",
		Email:         "ana@example.com",
		Roles:         []string{"user", "admin"},
		EmailVerified: credential.Verified(false),
	}
}

func TestIssueParseRoundTripsProfile(t *testing.T) {
	m, _ := newEdManager(t, Config{Issuer: "authstate", Audience: "api", KeyID: "k1"})

	token, err := m.Issue(profile(), "s-1")
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SID)
	assert.Equal(t, profile(), claims.Profile())
}

func TestParseRejects(t *testing.T) {
	m, priv := newEdManager(t, Config{Issuer: "authstate", Audience: "api"})

	sign := func(method gjwt.SigningMethod, key any, c AccessClaims) string {
		s, err := gjwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() AccessClaims {
		return AccessClaims{UID: "u-1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "authstate",
			Audience:  gjwt.ClaimStrings{"api"},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
	}

	wrongIssuer := valid()
	wrongIssuer.Issuer = "other"
	wrongAudience := valid()
	wrongAudience.Audience = gjwt.ClaimStrings{"other"}
	expired := valid()
	expired.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSubject := valid()
	noSubject.UID = ""

	cases := map[string]string{
		"garbage":        "not.a.jwt",
		"empty":          "",
		"wrong alg":      sign(gjwt.SigningMethodHS256, []byte("secret-secret-secret-secret-secret"), valid()),
		"wrong issuer":   sign(gjwt.SigningMethodEdDSA, priv, wrongIssuer),
		"wrong audience": sign(gjwt.SigningMethodEdDSA, priv, wrongAudience),
		"expired":        sign(gjwt.SigningMethodEdDSA, priv, expired),
		"no subject":     sign(gjwt.SigningMethodEdDSA, priv, noSubject),
	}
	for name, token := range cases {
		_, err := m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err := m.Parse(sign(gjwt.SigningMethodEdDSA, priv, valid()))
	assert.NoError(t, err)
}

func TestKeyIDMismatch(t *testing.T) {
	a, _ := newEdManager(t, Config{KeyID: "k1"})
	token, err := a.Issue(profile(), "")
	require.NoError(t, err)

	b, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PublicKey:     a.verify.(ed25519.PublicKey),
		KeyID:         "k2",
	})
	require.NoError(t, err)
	_, err = b.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = b.Issue(profile(), "")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHS256(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	token, err := m.Issue(profile(), "s-1")
	require.NoError(t, err)
	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UID)
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: "rs256"},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32), Leeway: time.Hour},
	}
	for _, cfg := range cases {
		_, err := NewManager(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func FuzzParse(f *testing.F) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := m.Issue(profile(), "s-1")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := m.Parse(input)
		if err == nil && claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
	})
}
