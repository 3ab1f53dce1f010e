package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RoleMember is the role carried by every app user's access token.
const RoleMember = "member"

// Claims are the only supported JWT claims shape for this service.
// UserID is the directory id used as the caller/receiver id of call sessions
// and as the owner of the user's inbox topic.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
