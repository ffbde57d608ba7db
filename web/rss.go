package web

import (
	"fmt"
	"time"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

const feedSize = 25

// ReportsFeed renders recently published session reports as RSS. A non-nil
// gameId narrows the feed to a single game.
func ReportsFeed(store *db.DB, conf *util.AppConfig, gameId *uuid.UUID) (string, error) {
	var reports []domain.Report
	var err error

	title := conf.Conf.SiteName
	link := conf.BaseURL()
	if gameId != nil {
		game, gerr := store.ReadGameById(*gameId)
		if gerr != nil {
			return "", fmt.Errorf("game not found: %w", gerr)
		}
		title = fmt.Sprintf("%s - %s", conf.Conf.SiteName, game.Title)
		link = game.APID
		reports, err = store.ReadPublishedReportsByGame(*gameId, feedSize)
	} else {
		reports, err = store.ReadPublishedReports(feedSize)
	}
	if err != nil {
		return "", err
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: conf.Conf.SiteDescription,
		Created:     time.Now(),
	}

	for i := range reports {
		report := &reports[i]
		published := report.CreatedAt
		if report.PublishedAt != nil {
			published = *report.PublishedAt
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          report.Id.String(),
			Title:       report.Title,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/reports/%s", conf.BaseURL(), report.Id)},
			Description: report.Content,
			Created:     published,
		})
	}

	return feed.ToRss()
}
