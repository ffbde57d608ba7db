package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportDraft     ReportStatus = "draft"
	ReportPublished ReportStatus = "published"
)

// Report is a session report written by a user within a game.
type Report struct {
	Id          uuid.UUID
	GameId      uuid.UUID
	AuthorId    uuid.UUID
	Title       string
	Content     string
	Status      ReportStatus
	PublishedAt *time.Time
	Remote      bool
	APID        string
	CreatedAt   time.Time
}

type QuoteVisibility string

const (
	QuotePublic    QuoteVisibility = "public"
	QuotePrivate   QuoteVisibility = "private"
	QuoteEphemeral QuoteVisibility = "ephemeral"
)

// Quote is a line attributed to a character, optionally tied to a report.
type Quote struct {
	Id          uuid.UUID
	CharacterId uuid.UUID
	AuthorId    uuid.UUID
	Content     string
	Context     string
	Visibility  QuoteVisibility
	ReportId    *uuid.UUID
	Remote      bool
	APID        string
	CreatedAt   time.Time
}
