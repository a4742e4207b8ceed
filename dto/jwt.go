package dto

import "time"

// VerifiedToken is what the admission path consumes from a bearer token.
type VerifiedToken struct {
	Subject   string
	IsAdmin   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}
