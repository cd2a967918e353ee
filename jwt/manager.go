package jwt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/principal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names the symmetric algorithm a Manager is pinned to.
type SigningMethod string

const (
	// MethodHS256 pins HMAC-SHA256 (default).
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 pins HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 pins HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

const minSecretLength = 32

var (
	// ErrMalformed covers bad signatures, wrong algorithms and structurally invalid claims.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired is returned once exp plus leeway has passed.
	ErrExpired = errors.New("token expired")
	// ErrNotYetValid is returned when iat or nbf lies beyond now plus leeway.
	ErrNotYetValid = errors.New("token not yet valid")
	// ErrSigningKey is returned when no signing secret is configured.
	ErrSigningKey = errors.New("signing key unavailable")
)

// Config defines a Manager. Instances are treated as immutable after NewManager.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// VerifyKeys holds additional secrets by kid, used during secret rotation.
	VerifyKeys map[string][]byte

	ElevatedRoles []principal.Role
	ElevatedTTL   time.Duration
	StandardTTL   time.Duration

	Now func() time.Time
}

// SessionClaims is the signed session payload.
type SessionClaims struct {
	Role     string  `json:"role"`
	TenantID *string `json:"tenantId"`
	Stamp    string  `json:"stamp"`
	jwt.RegisteredClaims
}

// Token is an issued, signed session token.
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL returns the lifetime between IssuedAt and ExpiresAt.
func (t Token) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// Manager encodes, decodes and issues session tokens.
type Manager struct {
	config   Config
	elevated map[principal.Role]struct{}
	now      func() time.Time
}

// NewManager validates cfg and returns a Manager pinned to cfg.SigningMethod.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}
	if len(cfg.Secret) == 0 {
		return nil, ErrSigningKey
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.ElevatedTTL <= 0 || cfg.StandardTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minSecretLength {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	m := &Manager{
		config:   cfg,
		elevated: make(map[principal.Role]struct{}, len(cfg.ElevatedRoles)),
		now:      cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	for _, r := range cfg.ElevatedRoles {
		m.elevated[r] = struct{}{}
	}
	return m, nil
}

// Elevated reports whether role belongs to the elevated-privilege set.
func (m *Manager) Elevated(role principal.Role) bool {
	_, ok := m.elevated[role]
	return ok
}

// TTL returns the expiry tier for role.
func (m *Manager) TTL(role principal.Role) time.Duration {
	if m.Elevated(role) {
		return m.config.ElevatedTTL
	}
	return m.config.StandardTTL
}

// Issue signs a token for p. The caller must pass a principal read fresh from
// the source of truth; Issue never touches the revocation store.
func (m *Manager) Issue(p principal.Principal) (Token, error) {
	if p.ID == "" || p.Stamp == "" || !p.Role.Valid() {
		return Token{}, ErrMalformed
	}

	now := m.now().Truncate(time.Second)
	exp := now.Add(m.TTL(p.Role))
	jti := uuid.NewString()

	claims := &SessionClaims{
		Role:     string(p.Role),
		TenantID: principal.CloneTenant(p.TenantID),
		Stamp:    p.Stamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	value, err := m.Encode(claims)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: value, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

// Encode signs claims as-is, stamping issuer and audience from config.
func (m *Manager) Encode(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", ErrMalformed
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey := m.signKey()
	if len(signKey) == 0 {
		return "", ErrSigningKey
	}
	return token.SignedString(signKey)
}

// Decode verifies the signature with the pinned algorithm and checks the time
// window with an inclusive leeway: exp == now-leeway is still accepted.
func (m *Manager) Decode(tokenStr string) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	alg := m.method().Alg()
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != alg {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		kid, _ := t.Header["kid"].(string)
		if len(m.config.VerifyKeys) > 0 && kid != "" {
			key, ok := m.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return key, nil
		}
		if m.config.KeyID != "" && kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if err := m.validate(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) validate(claims *SessionClaims) error {
	if claims.Subject == "" || claims.Stamp == "" || !principal.Role(claims.Role).Valid() {
		return ErrMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrMalformed
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return ErrMalformed
	}
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return fmt.Errorf("%w: issuer mismatch", ErrMalformed)
	}
	if m.config.Audience != "" && !slices.Contains(claims.Audience, m.config.Audience) {
		return fmt.Errorf("%w: audience mismatch", ErrMalformed)
	}

	now := m.now()
	leeway := m.config.Leeway
	if now.After(claims.ExpiresAt.Time.Add(leeway)) {
		return ErrExpired
	}
	if claims.IssuedAt.Time.After(now.Add(leeway)) {
		return ErrNotYetValid
	}
	if claims.NotBefore != nil && claims.NotBefore.Time.After(now.Add(leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// Principal returns the claims-shaped principal view.
func (c *SessionClaims) Principal() principal.Principal {
	return principal.Principal{
		ID:       c.Subject,
		Role:     principal.Role(c.Role),
		TenantID: principal.CloneTenant(c.TenantID),
		Stamp:    c.Stamp,
	}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() []byte {
	if m.config.KeyID != "" {
		if key, ok := m.config.VerifyKeys[m.config.KeyID]; ok {
			return key
		}
	}
	return m.config.Secret
}
