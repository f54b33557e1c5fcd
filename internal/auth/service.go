package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Session is the outcome of a successful login or refresh.
type Session struct {
	Token   Token
	Account Account
}

// Service authenticates accounts and issues session tokens.
type Service struct {
	store AccountStore
	codec *Codec
}

// NewService wires the login service.
func NewService(store AccountStore, codec *Codec) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: account store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	return &Service{store: store, codec: codec}, nil
}

// Codec exposes the token codec used by the service.
func (s *Service) Codec() *Codec { return s.codec }

// Login verifies login (user_id or email) and password and issues a token.
// Unknown, inactive and wrong-password accounts all yield ErrCredentialMismatch.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Session{}, ErrMissingCredential
	}

	acct, err := s.store.FindAccountByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrCredentialMismatch
	}
	if err != nil {
		return Session{}, fmt.Errorf("auth: find account: %w", err)
	}
	if !acct.Active || !VerifyPassword(password, acct.PasswordHash) {
		return Session{}, ErrCredentialMismatch
	}

	return s.issue(*acct)
}

// Refresh exchanges a still-valid token for a fresh one built from the
// current account row.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	if strings.TrimSpace(raw) == "" {
		return Session{}, ErrMissingToken
	}
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return Session{}, err
	}
	acct, err := s.store.FindAccountByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, fmt.Errorf("%w: account no longer exists", ErrTokenInvalid)
	}
	if err != nil {
		return Session{}, fmt.Errorf("auth: find account: %w", err)
	}
	if !acct.Active {
		return Session{}, fmt.Errorf("%w: account disabled", ErrTokenInvalid)
	}
	return s.issue(*acct)
}

func (s *Service) issue(acct Account) (Session, error) {
	tok, err := s.codec.Issue(acct.Claims())
	if err != nil {
		return Session{}, err
	}
	acct.PasswordHash = ""
	return Session{Token: tok, Account: acct}, nil
}
