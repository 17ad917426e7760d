package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by Client implementations. The pool and engine
// branch on these with errors.Is/As; everything else is treated as a generic
// transport failure.
var (
	ErrPhoneInvalid    = errors.New("phone number invalid")
	ErrPhoneBanned     = errors.New("phone number banned")
	ErrCodeInvalid     = errors.New("login code invalid")
	ErrCodeExpired     = errors.New("login code expired")
	ErrPasswordNeeded  = errors.New("two-step verification password needed")
	ErrPasswordInvalid = errors.New("two-step verification password invalid")
	ErrNotAuthorized   = errors.New("session not authorized")

	ErrChatWriteForbidden = errors.New("writing to chat forbidden")
	ErrChannelPrivate     = errors.New("channel is private")
	ErrPeerInvalid        = errors.New("peer id invalid")
)

// FloodWaitError is the server's backpressure signal: the caller must wait
// Duration before retrying anything on the same session.
type FloodWaitError struct {
	Duration time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait for %s", e.Duration)
}

// AsFloodWait extracts the mandated wait from err, if it is a flood wait.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Duration, true
	}
	return 0, false
}

// IsPermission reports whether err is a destination-level access failure
// (forbidden, private or unknown peer) that must never escalate past the
// destination it occurred on.
func IsPermission(err error) bool {
	return errors.Is(err, ErrChatWriteForbidden) ||
		errors.Is(err, ErrChannelPrivate) ||
		errors.Is(err, ErrPeerInvalid)
}
