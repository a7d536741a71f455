package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

const (
	RoleUser         = "user"
	RolePsychologist = "psychologist"
	RoleSysadmin     = "sysadmin"
	RoleOwner        = "owner"
	RoleAdmin        = "admin"
)

// Claims is the bearer token payload. Subject carries the actor id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates raw and resolves it to an Actor.
func (v *Verifier) Parse(raw string) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return actorFor(claims.Role, id)
}

func actorFor(role string, id uuid.UUID) (Actor, error) {
	switch role {
	case RoleUser:
		return User{ID: id}, nil
	case RolePsychologist:
		return Psychologist{ID: id}, nil
	case RoleSysadmin, RoleOwner, RoleAdmin:
		return Staff{ID: id, Level: role}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// Issue signs a token for id with the given role. Used by the seed and
// simulate commands and by tests.
func (v *Verifier) Issue(id uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
