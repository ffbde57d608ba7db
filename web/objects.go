package web

import (
	"fmt"

	"github.com/RebelliousSmile/suddenly/activitypub"
	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

// ReportObject renders a published report as its ActivityPub Note.
// Drafts stay invisible to the fediverse.
func ReportObject(store *db.DB, baseURL string, id uuid.UUID) (map[string]any, error) {
	report, err := store.ReadReportById(id)
	if err != nil {
		return nil, err
	}
	if report.Status != domain.ReportPublished {
		return nil, fmt.Errorf("report %s is not published", id)
	}

	authorURI, gameURI := "", ""
	if author, err := store.ReadUserById(report.AuthorId); err == nil {
		authorURI = author.APID
	}
	if game, err := store.ReadGameById(report.GameId); err == nil {
		gameURI = game.APID
	}

	return activitypub.BuildReportNote(baseURL, report, authorURI, gameURI), nil
}

// QuoteObject renders a public quote as its ActivityPub Note.
func QuoteObject(store *db.DB, baseURL string, id uuid.UUID) (map[string]any, error) {
	quote, err := store.ReadQuoteById(id)
	if err != nil {
		return nil, err
	}
	if quote.Visibility != domain.QuotePublic {
		return nil, fmt.Errorf("quote %s is not public", id)
	}

	characterURI := ""
	if character, err := store.ReadCharacterById(quote.CharacterId); err == nil {
		characterURI = character.APID
	}

	return activitypub.BuildQuoteNote(baseURL, quote, characterURI), nil
}
