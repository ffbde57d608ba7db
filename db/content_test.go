package db

import (
	"testing"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

func makePublishedReport(t *testing.T, store *DB, game *domain.Game, author *domain.User, title string) *domain.Report {
	t.Helper()
	now := time.Now()
	report := &domain.Report{
		Id:          uuid.New(),
		GameId:      game.Id,
		AuthorId:    author.Id,
		Title:       title,
		Content:     "The party descended into the crypt.",
		Status:      domain.ReportPublished,
		PublishedAt: &now,
		CreatedAt:   now,
	}
	if err := store.CreateReport(report); err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}
	return report
}

func TestPublishedReportQueriesSkipDrafts(t *testing.T) {
	store := setupTestDB(t)
	author := makeLocalUser(t, store, "scribe")
	game := makeGame(t, store, author, "Delta Green")

	makePublishedReport(t, store, game, author, "Session 1")
	draft := &domain.Report{
		Id:        uuid.New(),
		GameId:    game.Id,
		AuthorId:  author.Id,
		Title:     "Session 2 notes",
		Content:   "wip",
		Status:    domain.ReportDraft,
		CreatedAt: time.Now(),
	}
	if err := store.CreateReport(draft); err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}

	reports, err := store.ReadPublishedReports(10)
	if err != nil {
		t.Fatalf("ReadPublishedReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("Expected 1 published report, got %d", len(reports))
	}
	if reports[0].Title != "Session 1" {
		t.Errorf("Wrong report returned: %q", reports[0].Title)
	}

	byGame, err := store.ReadPublishedReportsByGame(game.Id, 10)
	if err != nil {
		t.Fatalf("ReadPublishedReportsByGame failed: %v", err)
	}
	if len(byGame) != 1 {
		t.Errorf("Expected 1 report for game, got %d", len(byGame))
	}

	byAuthor, err := store.ReadPublishedReportsByAuthor(author.Id, 10)
	if err != nil {
		t.Fatalf("ReadPublishedReportsByAuthor failed: %v", err)
	}
	if len(byAuthor) != 1 {
		t.Errorf("Expected 1 report for author, got %d", len(byAuthor))
	}

	count, err := store.CountPublishedReports()
	if err != nil {
		t.Fatalf("CountPublishedReports failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestPublicQuotesByCharacter(t *testing.T) {
	store := setupTestDB(t)
	author := makeLocalUser(t, store, "player")
	game := makeGame(t, store, author, "Mausritter")
	character := makeCharacter(t, store, author, game, "Pip")

	public := &domain.Quote{
		Id:          uuid.New(),
		CharacterId: character.Id,
		AuthorId:    author.Id,
		Content:     "I regret nothing.",
		Visibility:  domain.QuotePublic,
		CreatedAt:   time.Now(),
	}
	private := &domain.Quote{
		Id:          uuid.New(),
		CharacterId: character.Id,
		AuthorId:    author.Id,
		Content:     "Table secret.",
		Visibility:  domain.QuotePrivate,
		CreatedAt:   time.Now(),
	}
	for _, q := range []*domain.Quote{public, private} {
		if err := store.CreateQuote(q); err != nil {
			t.Fatalf("CreateQuote failed: %v", err)
		}
	}

	quotes, err := store.ReadPublicQuotesByCharacter(character.Id, 10)
	if err != nil {
		t.Fatalf("ReadPublicQuotesByCharacter failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("Expected 1 public quote, got %d", len(quotes))
	}
	if quotes[0].Content != "I regret nothing." {
		t.Errorf("Wrong quote returned: %q", quotes[0].Content)
	}

	stored, err := store.ReadQuoteById(private.Id)
	if err != nil {
		t.Fatalf("ReadQuoteById failed: %v", err)
	}
	if stored.Visibility != domain.QuotePrivate {
		t.Errorf("Expected private visibility, got %s", stored.Visibility)
	}
}
