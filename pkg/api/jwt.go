package api

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures identity extraction from bearer tokens.
type JWTConfig struct {
	// RoleClaim is a dot path into the claims, e.g. "realm_access.roles".
	RoleClaim         string `yaml:"roleClaim"`
	AdminRoleValue    string `yaml:"adminRoleValue"`
	SurveyorRoleValue string `yaml:"surveyorRoleValue"`
	// PrincipalClaim is recorded as the audit actor.
	PrincipalClaim string `yaml:"principalClaim"`
	// PublicKeyPath points at a PEM RSA public key. Without it tokens are
	// decoded but not verified, which is only safe behind a trusted proxy.
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *JWTConfig) applyDefaults() {
	if c.RoleClaim == "" {
		c.RoleClaim = "role"
	}
	if c.AdminRoleValue == "" {
		c.AdminRoleValue = string(RoleAdmin)
	}
	if c.SurveyorRoleValue == "" {
		c.SurveyorRoleValue = string(RoleSurveyor)
	}
	if c.PrincipalClaim == "" {
		c.PrincipalClaim = "sub"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type jwtIdentity struct {
	cfg    JWTConfig
	key    *rsa.PublicKey
	parser *jwt.Parser
}

// NewJWTIdentityExtractor returns an IdentityExtractor that reads the
// "Authorization: Bearer" token. Callers without a usable token are public.
func NewJWTIdentityExtractor(cfg JWTConfig) (IdentityExtractor, error) {
	cfg.applyDefaults()

	var opts []jwt.ParserOption
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	j := &jwtIdentity{cfg: cfg}

	if cfg.PublicKeyPath == "" {
		cfg.Logger.Warn("no JWT public key configured, token signatures are not checked")
		j.parser = jwt.NewParser(opts...)
		return j.identify, nil
	}

	key, err := readRSAPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	j.key = key
	j.parser = jwt.NewParser(append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))...)
	cfg.Logger.Info("verifying JWT signatures", "keyPath", cfg.PublicKeyPath)
	return j.identify, nil
}

func (j *jwtIdentity) identify(r *http.Request) Identity {
	raw := extractBearerToken(r)
	if raw == "" {
		return Identity{Role: RolePublic}
	}
	claims, err := j.claims(raw)
	if err != nil {
		j.cfg.Logger.Debug("rejected bearer token", "error", err)
		return Identity{Role: RolePublic}
	}
	principal, _ := lookupClaim(claims, j.cfg.PrincipalClaim).(string)
	return Identity{Principal: principal, Role: roleFromClaims(claims, j.cfg)}
}

func (j *jwtIdentity) claims(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if j.key == nil {
		if _, _, err := j.parser.ParseUnverified(raw, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}
	if _, err := j.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func readRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse JWT public key %s: %w", path, err)
	}
	return key, nil
}

// extractBearerToken returns the token of an "Authorization: Bearer" header,
// or "" when the header is missing or uses another scheme.
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

var errClaimMissing = errors.New("claim missing")

// lookupClaim resolves a dot path such as "realm_access.roles", or nil.
func lookupClaim(claims jwt.MapClaims, path string) any {
	v, err := walkClaims(map[string]any(claims), strings.Split(path, "."))
	if err != nil {
		return nil
	}
	return v
}

func walkClaims(node any, path []string) (any, error) {
	if len(path) == 0 {
		return node, nil
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, errClaimMissing
	}
	next, ok := m[path[0]]
	if !ok {
		return nil, errClaimMissing
	}
	return walkClaims(next, path[1:])
}

// roleFromClaims picks the strongest role named by the role claim, which may
// be a single string or a list.
func roleFromClaims(claims jwt.MapClaims, cfg JWTConfig) Role {
	var names []string
	switch v := lookupClaim(claims, cfg.RoleClaim).(type) {
	case string:
		names = append(names, v)
	case []any:
		for _, n := range v {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	}

	best := RolePublic
	for _, n := range names {
		if strings.EqualFold(n, cfg.AdminRoleValue) {
			return RoleAdmin
		}
		if strings.EqualFold(n, cfg.SurveyorRoleValue) {
			best = RoleSurveyor
		}
	}
	return best
}
