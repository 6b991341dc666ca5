// Package store defines the document-store contract the core consumes
// (§1 "persistence layer ... opaque key/value operations") and a
// mongo-driver adapter over it. The core never depends on mongo types
// directly — every component that needs persistence takes a narrow
// interface (UserStore, SessionStore, ...) so tests can fake it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// ErrNotFound is returned by any lookup that finds nothing.
var ErrNotFound = errors.New("store: not found")

// UserStore is the opaque CRUD surface over the users collection.
type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// SessionStore is the opaque CRUD surface over the chat-sessions collection.
type SessionStore interface {
	InsertSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string, limit, offset int, search string, from, to *time.Time) ([]models.ChatSession, int, error)
	UpdateSession(ctx context.Context, session *models.ChatSession) error
	DeleteSession(ctx context.Context, id string) error
}

// MessageStore is the opaque CRUD surface over the chat-messages collection.
type MessageStore interface {
	InsertMessage(ctx context.Context, message *models.ChatMessage) error
	ListMessages(ctx context.Context, chatID string, limit, offset int, includeSystem bool, roleFilter string) ([]models.ChatMessage, int, error)
	DeleteMessagesForChat(ctx context.Context, chatID string) error
}

// ArtifactStore is the opaque CRUD surface over the artifacts collection.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, id string) (*models.Artifact, error)
}

// ReportStore is the opaque CRUD surface over the validation-reports
// collection (auditor plugin findings).
type ReportStore interface {
	InsertReport(ctx context.Context, report *models.ValidationReport) error
	GetReport(ctx context.Context, id string) (*models.ValidationReport, error)
}

// Store bundles the full document-store surface the gateway consumes.
type Store interface {
	UserStore
	SessionStore
	MessageStore
	ArtifactStore
	ReportStore
}
