package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnplayableSong means resolution for this id already failed in this
	// session; asking again without a playlist rebuild cannot succeed.
	ErrUnplayableSong = errors.New("song is not playable")

	// ErrNoPlayableSource means the track and every permitted fallback are
	// exhausted, including the skip chain through the rest of the playlist.
	ErrNoPlayableSource = errors.New("no playable source")

	// ErrSessionExpired is the remote 301: not a user-visible error, it
	// triggers an unconditional session reset and catalog reload.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoSongSelected is returned by operations that need a current song.
	ErrNoSongSelected = errors.New("no song selected")
)

// CatalogLoadError wraps a failed remote catalog call with the
// human-readable reason the remote provided. It is surfaced to the caller
// and never retried automatically.
type CatalogLoadError struct {
	Op     string
	Reason string
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("catalog %s failed: %s", e.Op, e.Reason)
}

// AuthError carries a login or captcha failure message verbatim from the
// remote.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
