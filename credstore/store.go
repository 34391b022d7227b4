// Package credstore persists a session's credential pair and cached identity.
//
// A store holds three slots: the access token, the refresh token and the cached
// identity blob. The two tokens are always written together and all three slots
// are cleared together.
package credstore

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"golang.org/x/oauth2"
)

// Slot names used by the persisted layouts
const (
	SlotAccessToken    = "access_token"
	SlotRefreshToken   = "refresh_token"
	SlotCachedIdentity = "cached_identity"
)

// Store is the credential store of one client session.
type Store interface {
	// SetTokens overwrites both tokens as one write.
	SetTokens(ctx context.Context, access, refresh string) error
	// SwapAccessToken replaces the access token only while refresh is still the
	// stored refresh token, and reports whether it did.
	SwapAccessToken(ctx context.Context, access, refresh string) (bool, error)
	// AccessToken returns the stored access token or "" when absent.
	AccessToken(ctx context.Context) (string, error)
	// RefreshToken returns the stored refresh token or "" when absent.
	RefreshToken(ctx context.Context) (string, error)
	// Credentials returns the stored pair, or nil when no pair is stored.
	Credentials(ctx context.Context) (*oauth2.Token, error)
	SetIdentity(ctx context.Context, id identity.Identity) error
	// CachedIdentity returns the cached identity, or nil when absent.
	CachedIdentity(ctx context.Context) (*identity.Identity, error)
	// Clear removes the access token, refresh token and cached identity together.
	Clear(ctx context.Context) error
}

// document is the unit every backend reads and writes.
type document struct {
	Token    *oauth2.Token      `json:"token,omitempty"`
	Identity *identity.Identity `json:"cached_identity,omitempty"`
}

type backend interface {
	read(ctx context.Context) (*document, error)
	write(ctx context.Context, doc *document) error
	clear(ctx context.Context) error
}

// docStore implements Store over a backend, serialising read-modify-write cycles.
type docStore struct {
	mu sync.Mutex
	b  backend
}

var _ Store = (*docStore)(nil)

func newDocStore(b backend) *docStore {
	return &docStore{b: b}
}

func (s *docStore) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" && refresh == "" {
		return s.Clear(ctx)
	}
	if refresh == "" {
		return errors.ErrIncompletePair
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.b.read(ctx)
	if err != nil {
		return errors.Wrapf(err, "[credstore SetTokens] read")
	}
	doc.Token = &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		Expiry:       TokenExpiry(access),
	}
	if err := s.b.write(ctx, doc); err != nil {
		return errors.Wrapf(err, "[credstore SetTokens] write")
	}
	return nil
}

func (s *docStore) SwapAccessToken(ctx context.Context, access, refresh string) (bool, error) {
	if access == "" || refresh == "" {
		return false, errors.ErrIncompletePair
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.b.read(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "[credstore SwapAccessToken] read")
	}
	if doc.Token == nil || doc.Token.RefreshToken != refresh {
		return false, nil
	}
	doc.Token.AccessToken = access
	doc.Token.Expiry = TokenExpiry(access)
	if err := s.b.write(ctx, doc); err != nil {
		return false, errors.Wrapf(err, "[credstore SwapAccessToken] write")
	}
	return true, nil
}

func (s *docStore) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.Credentials(ctx)
	if err != nil || tok == nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (s *docStore) RefreshToken(ctx context.Context) (string, error) {
	tok, err := s.Credentials(ctx)
	if err != nil || tok == nil {
		return "", err
	}
	return tok.RefreshToken, nil
}

func (s *docStore) Credentials(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.b.read(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[credstore Credentials] read")
	}
	if doc.Token == nil || (doc.Token.AccessToken == "" && doc.Token.RefreshToken == "") {
		return nil, nil
	}
	tok := *doc.Token
	return &tok, nil
}

func (s *docStore) SetIdentity(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.b.read(ctx)
	if err != nil {
		return errors.Wrapf(err, "[credstore SetIdentity] read")
	}
	doc.Identity = &id
	if err := s.b.write(ctx, doc); err != nil {
		return errors.Wrapf(err, "[credstore SetIdentity] write")
	}
	return nil
}

func (s *docStore) CachedIdentity(ctx context.Context) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.b.read(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[credstore CachedIdentity] read")
	}
	return doc.Identity, nil
}

func (s *docStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.b.clear(ctx); err != nil {
		return errors.Wrapf(err, "[credstore Clear]")
	}
	return nil
}

// Expired reports whether the token carries an expiry that has passed at now.
// Tokens without a decodable expiry never report expired.
func Expired(tok *oauth2.Token, now time.Time) bool {
	if tok == nil || tok.Expiry.IsZero() {
		return false
	}
	return !now.Before(tok.Expiry)
}
