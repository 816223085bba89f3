package domain

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const shareTokenBytes = 32

var (
	ErrLinkInactive     = errors.New("share link is no longer active")
	ErrLinkExpired      = errors.New("share link has expired")
	ErrLinkExhausted    = errors.New("share link reached its view limit")
	ErrPasswordRequired = errors.New("share link requires a password")
	ErrWrongPassword    = errors.New("share link password is incorrect")
)

// TokenGenerator produces opaque share-link tokens.
type TokenGenerator interface {
	Token() (string, error)
}

// RandomTokens draws 32 random bytes and encodes them URL-safe.
type RandomTokens struct{}

func (RandomTokens) Token() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type ShareLink struct {
	Token         string     `json:"token"`
	DocumentID    uuid.UUID  `json:"documentId"`
	TenantID      uuid.UUID  `json:"tenantId"`
	PasswordHash  string     `json:"-"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	MaxViews      *int       `json:"maxViews,omitempty"`
	CurrentViews  int        `json:"currentViews"`
	AllowDownload bool       `json:"allowDownload"`
	IsActive      bool       `json:"isActive"`
	CreatedBy     *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type ShareLinkOptions struct {
	Password      string
	ExpiresAt     *time.Time
	MaxViews      *int
	AllowDownload bool
}

// HasPassword is exposed in responses instead of the hash.
func (l ShareLink) HasPassword() bool {
	return l.PasswordHash != ""
}

// NewShareLink creates an active link for the document.
func NewShareLink(gen TokenGenerator, d *Document, opts ShareLinkOptions, createdBy *uuid.UUID, now time.Time) (ShareLink, error) {
	token, err := gen.Token()
	if err != nil {
		return ShareLink{}, err
	}

	link := ShareLink{
		Token:         token,
		DocumentID:    d.ID,
		TenantID:      d.TenantID,
		ExpiresAt:     opts.ExpiresAt,
		MaxViews:      opts.MaxViews,
		AllowDownload: opts.AllowDownload,
		IsActive:      true,
		CreatedBy:     createdBy,
		CreatedAt:     now,
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return ShareLink{}, err
		}
		link.PasswordHash = string(hash)
	}
	return link, nil
}

// CheckAccess applies the link policy. It does not consume a view.
func (l ShareLink) CheckAccess(now time.Time, password string) error {
	switch {
	case !l.IsActive:
		return ErrLinkInactive
	case l.ExpiresAt != nil && !now.Before(*l.ExpiresAt):
		return ErrLinkExpired
	case l.MaxViews != nil && l.CurrentViews >= *l.MaxViews:
		return ErrLinkExhausted
	}
	if l.PasswordHash == "" {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if bcrypt.CompareHashAndPassword([]byte(l.PasswordHash), []byte(password)) != nil {
		return ErrWrongPassword
	}
	return nil
}
