// Package sharelink implements capability tokens that grant time-, count-
// and password-limited read access to a single document.
package sharelink

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Expected domain failures. Handlers branch on these; they are never logged
// as system errors.
var (
	ErrNotFound          = errors.New("share link not found")
	ErrDeactivated       = errors.New("share link deactivated")
	ErrExpired           = errors.New("share link expired")
	ErrExhausted         = errors.New("share link view limit reached")
	ErrPasswordRequired  = errors.New("share link password required")
	ErrPasswordIncorrect = errors.New("share link password incorrect")
)

// ShareLink maps to the share_link table. Rows are never deleted; they are
// retained for the owner's audit and statistics views.
type ShareLink struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DocumentID   uuid.UUID  `db:"document_id" json:"document_id"`
	Token        string     `db:"token" json:"-"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	MaxViews     *int       `db:"max_views" json:"max_views,omitempty"`
	ViewCount    int        `db:"view_count" json:"view_count"`
	LastViewedAt *time.Time `db:"last_viewed_at" json:"last_viewed_at,omitempty"`
	Active       bool       `db:"active" json:"active"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// HasPassword reports whether viewing the link requires a password. The hash
// itself is never serialized.
func (l *ShareLink) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// State is the read-time classification of a share link. Only Active and
// Deactivated are persisted (as the boolean active flag); Expired and
// Exhausted are derived from the stored fields.
type State string

const (
	StateActive      State = "active"
	StateExpired     State = "expired"
	StateExhausted   State = "exhausted"
	StateDeactivated State = "deactivated"
)

// Classify applies the share-link state machine to a stored record at the
// given instant. It is a pure function so the rule is testable in isolation
// from storage. Expiry and exhaustion are derived from the stored fields and
// take precedence over the active flag: a link deactivated because it ran
// out of views keeps reporting Exhausted to its owner, and Deactivated is
// reserved for explicit revocation.
func Classify(l *ShareLink, now time.Time) State {
	if !l.ExpiresAt.After(now) {
		return StateExpired
	}
	if l.MaxViews != nil && l.ViewCount >= *l.MaxViews {
		return StateExhausted
	}
	if !l.Active {
		return StateDeactivated
	}
	return StateActive
}

// Err maps a derived state to its domain error; StateActive maps to nil.
func (s State) Err() error {
	switch s {
	case StateExpired:
		return ErrExpired
	case StateExhausted:
		return ErrExhausted
	case StateDeactivated:
		return ErrDeactivated
	default:
		return nil
	}
}

// tokenBytes gives 256 bits of entropy; base64url encoding keeps the token
// URL-safe without padding.
const tokenBytes = 32

// NewToken generates an unguessable share token from the OS CSPRNG.
// Unguessability is the entire security property of the link.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Stats aggregates a document's share links for the owner's statistics view.
type Stats struct {
	DocumentID  uuid.UUID `json:"document_id"`
	TotalLinks  int       `json:"total_links"`
	ActiveLinks int       `json:"active_links"`
	TotalViews  int       `json:"total_views"`
}
