package domain

import "errors"

// Session and identity errors
var (
	ErrAuthMismatch      = errors.New("session claim does not match registered summoner")
	ErrDuplicateInstance = errors.New("summoner already connected elsewhere")
	ErrSessionNotFound   = errors.New("session not found")
	ErrPUUIDConflict     = errors.New("summoner name is bound to a different puuid")
)

// Match coordination errors
var (
	ErrNotInMatch     = errors.New("player is not a participant of this match")
	ErrOwnershipLost  = errors.New("backend no longer owns this match")
	ErrMatchNotFound  = errors.New("match not found")
	ErrInvalidStatus  = errors.New("match status does not allow this operation")
	ErrAlreadyLinked  = errors.New("match already linked to an external game")
)

// Delivery errors
var (
	ErrNoLiveSession = errors.New("no live session for player")
	ErrConfirmDenied = errors.New("critical action confirmation failed")
)
