package web

import (
	"fmt"
	"net/http"

	"github.com/RebelliousSmile/suddenly/activitypub"
	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

// maxActivitySize caps inbox POST bodies at 1MB.
const maxActivitySize = 1 * 1024 * 1024

// NewRouter wires the federation surface: actor documents, inboxes,
// collections, WebFinger, NodeInfo and the RSS feed.
func NewRouter(conf *util.AppConfig, store *db.DB, inbox *activitypub.Inbox) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global limit of 10 req/s per IP, burst 20; inboxes get a stricter
	// budget on top.
	g.Use(RateLimitMiddleware(NewIPRateLimiter(rate.Limit(10), 20)))
	inboxLimiter := RateLimitMiddleware(NewIPRateLimiter(rate.Limit(5), 10))
	maxBody := MaxBytesMiddleware(maxActivitySize)

	baseURL := conf.BaseURL()

	actorRoutes := []struct {
		kind  domain.ActorKind
		path  string
		param string
	}{
		{domain.KindUser, "/users", "username"},
		{domain.KindGame, "/games", "id"},
		{domain.KindCharacter, "/characters", "id"},
	}

	for _, route := range actorRoutes {
		kind := route.kind
		param := route.param

		g.GET(route.path+"/:"+param, func(c *gin.Context) {
			actor, err := lookupLocalActor(store, kind, c.Param(param))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
				return
			}
			c.Header("Content-Type", activityJSON)
			c.JSON(http.StatusOK, ActorDocument(actor))
		})

		g.GET(route.path+"/:"+param+"/outbox", func(c *gin.Context) {
			actor, err := lookupLocalActor(store, kind, c.Param(param))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
				return
			}
			collection, err := OutboxCollection(store, baseURL, actor)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build outbox"})
				return
			}
			c.Header("Content-Type", activityJSON)
			c.JSON(http.StatusOK, collection)
		})

		g.GET(route.path+"/:"+param+"/followers", func(c *gin.Context) {
			actor, err := lookupLocalActor(store, kind, c.Param(param))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
				return
			}
			collection, err := FollowersCollection(store, actor)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build followers"})
				return
			}
			c.Header("Content-Type", activityJSON)
			c.JSON(http.StatusOK, collection)
		})

		g.POST(route.path+"/:"+param+"/inbox", inboxLimiter, maxBody, func(c *gin.Context) {
			inbox.Handle(c.Writer, c.Request, kind, c.Param(param))
		})
	}

	g.GET("/reports/:id", func(c *gin.Context) {
		serveObject(c, func(id uuid.UUID) (map[string]any, error) {
			return ReportObject(store, baseURL, id)
		})
	})

	g.GET("/quotes/:id", func(c *gin.Context) {
		serveObject(c, func(id uuid.UUID) (map[string]any, error) {
			return QuoteObject(store, baseURL, id)
		})
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		resource := c.Query("resource")
		jrd, err := ResolveWebfinger(store, conf, resource)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
			return
		}
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")
		c.JSON(http.StatusOK, jrd)
	})

	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		c.JSON(http.StatusOK, NodeInfoIndex(conf))
	})

	// Some implementations request the schema document under .well-known
	// directly, so both paths serve it.
	nodeInfo20 := func(c *gin.Context) {
		c.JSON(http.StatusOK, NodeInfoDocument(store, conf))
	}
	g.GET("/nodeinfo/2.0", nodeInfo20)
	g.GET("/.well-known/nodeinfo/2.0", nodeInfo20)

	g.GET("/feed", func(c *gin.Context) {
		var gameId *uuid.UUID
		if raw := c.Query("game"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.Status(http.StatusNotFound)
				return
			}
			gameId = &id
		}

		rss, err := ReportsFeed(store, conf, gameId)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
	})

	return g
}

// Serve runs the router on the configured host and port.
func Serve(conf *util.AppConfig, store *db.DB, inbox *activitypub.Inbox) error {
	addr := fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	log.Infof("Starting federation server on %s", addr)
	return NewRouter(conf, store, inbox).Run(addr)
}

// lookupLocalActor resolves a route identifier to a local actor row.
// Cached remote rows are never served as our own actors.
func lookupLocalActor(store *db.DB, kind domain.ActorKind, identifier string) (domain.Actor, error) {
	var actor domain.Actor
	var err error

	switch kind {
	case domain.KindUser:
		actor, err = store.ReadLocalUserByUsername(identifier)
	case domain.KindGame:
		var id uuid.UUID
		if id, err = uuid.Parse(identifier); err == nil {
			actor, err = store.ReadGameById(id)
		}
	default:
		var id uuid.UUID
		if id, err = uuid.Parse(identifier); err == nil {
			actor, err = store.ReadCharacterById(id)
		}
	}
	if err != nil {
		return nil, err
	}
	if actor.IsRemote() {
		return nil, fmt.Errorf("actor %s is remote", identifier)
	}
	return actor, nil
}

func serveObject(c *gin.Context, load func(uuid.UUID) (map[string]any, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid id"})
		return
	}
	object, err := load(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.Header("Content-Type", activityJSON)
	c.JSON(http.StatusOK, object)
}
