package web

import (
	"github.com/RebelliousSmile/suddenly/activitypub"
	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
)

const collectionPageSize = 50

// ActorDocument renders a local actor's ActivityPub document.
func ActorDocument(actor domain.Actor) map[string]any {
	return activitypub.BuildActorDocument(actor)
}

// OutboxCollection renders an actor's recent public activity as an
// OrderedCollection. Users and games list published reports, characters
// list their public quotes.
func OutboxCollection(store *db.DB, baseURL string, actor domain.Actor) (map[string]any, error) {
	var items []any

	switch a := actor.(type) {
	case *domain.User:
		reports, err := store.ReadPublishedReportsByAuthor(a.Id, collectionPageSize)
		if err != nil {
			return nil, err
		}
		for i := range reports {
			items = append(items, reportCreateItem(store, baseURL, &reports[i]))
		}
	case *domain.Game:
		reports, err := store.ReadPublishedReportsByGame(a.Id, collectionPageSize)
		if err != nil {
			return nil, err
		}
		for i := range reports {
			items = append(items, reportCreateItem(store, baseURL, &reports[i]))
		}
	case *domain.Character:
		quotes, err := store.ReadPublicQuotesByCharacter(a.Id, collectionPageSize)
		if err != nil {
			return nil, err
		}
		for i := range quotes {
			note := activitypub.BuildQuoteNote(baseURL, &quotes[i], a.APID)
			items = append(items, activitypub.BuildCreate(baseURL, quotes[i].Id, a.APID, note, false))
		}
	}

	return orderedCollection(actor.ActorURI()+"/outbox", items), nil
}

// FollowersCollection lists the actor URIs following a local actor.
func FollowersCollection(store *db.DB, actor domain.Actor) (map[string]any, error) {
	target := domain.FollowTarget{Kind: actor.ActorKind(), Id: actor.ActorId()}
	follows, err := store.ReadFollowersOf(target)
	if err != nil {
		return nil, err
	}

	var items []any
	for _, follow := range follows {
		follower, err := store.ReadUserById(follow.FollowerId)
		if err != nil || follower.APID == "" {
			continue
		}
		items = append(items, follower.APID)
	}

	return orderedCollection(actor.ActorURI()+"/followers", items), nil
}

func reportCreateItem(store *db.DB, baseURL string, report *domain.Report) map[string]any {
	authorURI, gameURI := "", ""
	if author, err := store.ReadUserById(report.AuthorId); err == nil {
		authorURI = author.APID
	}
	if game, err := store.ReadGameById(report.GameId); err == nil {
		gameURI = game.APID
	}
	// Same shape as the federated announcement: the game actor carries the
	// Create, the Note stays attributed to the author.
	note := activitypub.BuildReportNote(baseURL, report, authorURI, gameURI)
	return activitypub.BuildCreate(baseURL, report.Id, gameURI, note, true)
}

func orderedCollection(id string, items []any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{
		"@context":     activitypub.Context(),
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
}
