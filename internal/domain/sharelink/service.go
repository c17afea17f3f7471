package sharelink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service enforces the share-link state machine on top of the repository.
type Service struct {
	repo       Repository
	baseURL    string
	defaultTTL time.Duration
	now        func() time.Time
}

func NewService(repo Repository, baseURL string, defaultTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		baseURL:    strings.TrimRight(baseURL, "/"),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// CreateParams are the caller-supplied options for a new share link.
type CreateParams struct {
	TTL      time.Duration
	Password string
	MaxViews *int
}

// Create issues a new share link for the document and returns it together
// with the fully-qualified share URL.
func (s *Service) Create(ctx context.Context, documentID uuid.UUID, p CreateParams) (*ShareLink, string, error) {
	if documentID == uuid.Nil {
		return nil, "", fmt.Errorf("document_id is required")
	}
	if p.MaxViews != nil && *p.MaxViews <= 0 {
		return nil, "", fmt.Errorf("max_views must be positive")
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	token, err := NewToken()
	if err != nil {
		return nil, "", err
	}

	l := &ShareLink{
		DocumentID: documentID,
		Token:      token,
		MaxViews:   p.MaxViews,
		Active:     true,
		ExpiresAt:  s.now().Add(ttl),
	}
	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("hash share password: %w", err)
		}
		h := string(hash)
		l.PasswordHash = &h
	}

	if err := s.repo.Create(ctx, l); err != nil {
		return nil, "", fmt.Errorf("create share link: %w", err)
	}
	return l, s.ShareURL(token), nil
}

// ShareURL builds the public access URL for a token.
func (s *Service) ShareURL(token string) string {
	return s.baseURL + "/share/" + token
}

// Resolve looks up a link and classifies it. Expired and exhausted links are
// deactivated as a side effect so later lookups fail fast on the stored flag.
func (s *Service) Resolve(ctx context.Context, token string) (*ShareLink, error) {
	l, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	state := Classify(l, s.now())
	if l.Active && (state == StateExpired || state == StateExhausted) {
		if err := s.repo.Deactivate(ctx, token); err != nil {
			return nil, fmt.Errorf("deactivate %s share link: %w", state, err)
		}
	}
	if err := state.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// RecordView validates access and counts one view. Password failures do not
// consume the view budget; the increment itself is a single conditional
// update inside the repository, so concurrent viewers serialize there.
func (s *Service) RecordView(ctx context.Context, token, password string) (*ShareLink, error) {
	l, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if l.HasPassword() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(*l.PasswordHash), []byte(password)) != nil {
			return nil, ErrPasswordIncorrect
		}
	}

	updated, ok, err := s.repo.RecordView(ctx, token, s.now())
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}
	if !ok {
		// Lost a race with a concurrent viewer or expiry; re-resolve for the
		// precise failure and the deactivation side effect.
		if _, err := s.Resolve(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrExhausted
	}
	return updated, nil
}

// Deactivate revokes a link. Idempotent: unknown state transitions are not
// possible because the operation only ever clears the active flag.
func (s *Service) Deactivate(ctx context.Context, token string) error {
	if _, err := s.repo.GetByToken(ctx, token); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, token)
}

// Stats aggregates all of a document's links for its owner.
func (s *Service) Stats(ctx context.Context, documentID uuid.UUID) (*Stats, error) {
	return s.repo.StatsByDocument(ctx, documentID)
}

// List returns a document's links with their current classification attached.
func (s *Service) List(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*ListedLink, int, error) {
	links, total, err := s.repo.ListByDocument(ctx, documentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	out := make([]*ListedLink, len(links))
	for i, l := range links {
		out[i] = &ListedLink{ShareLink: l, State: Classify(l, now), URL: s.ShareURL(l.Token)}
	}
	return out, total, nil
}

// ListedLink decorates a stored link with its derived state for the owner's
// view; the raw expired/exhausted distinction is internal only and never
// shown to link visitors.
type ListedLink struct {
	*ShareLink
	State State  `json:"state"`
	URL   string `json:"url"`
}
