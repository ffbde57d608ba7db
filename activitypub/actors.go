package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const actorCacheTTL = 24 * time.Hour

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Summary           string      `json:"summary"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Resolver fetches remote actors, caches them as remote user rows and looks
// up local actors by kind. A non-nil prober gets poked once per unknown
// domain so the instance catalog fills itself in over time.
type Resolver struct {
	store  *db.DB
	client *http.Client
	prober *Prober
}

func NewResolver(store *db.DB, prober *Prober) *Resolver {
	return &Resolver{
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		prober: prober,
	}
}

// FetchActor dereferences an actor URI with the ActivityPub Accept header.
func (r *Resolver) FetchActor(actorURI string) (*ActorResponse, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	return &actor, nil
}

// ResolveOrCreateRemote returns the cached remote user for an actor URI,
// refetching when the row is older than 24 hours. A fresh fetch upserts by
// actor id, so repeated resolution never duplicates rows.
func (r *Resolver) ResolveOrCreateRemote(actorURI string) (*domain.User, error) {
	cached, err := r.store.ReadRemoteUserByAPID(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.LastFetched) < actorCacheTTL {
			return cached, nil
		}
	}

	actor, err := r.FetchActor(actorURI)
	if err != nil {
		// A stale cache entry beats a failed fetch.
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	domainName, err := extractDomain(actor.ID)
	if err != nil {
		return nil, err
	}

	// Remote usernames carry their domain so they can never collide with
	// local accounts.
	user := &domain.User{
		Id:          uuid.New(),
		Username:    fmt.Sprintf("%s@%s", actor.PreferredUsername, domainName),
		Name:        actor.Name,
		Summary:     actor.Summary,
		Avatar:      actor.Icon.URL,
		Remote:      true,
		APID:        actor.ID,
		InboxURL:    actor.Inbox,
		OutboxURL:   actor.Outbox,
		PublicKey:   actor.PublicKey.PublicKeyPem,
		CreatedAt:   time.Now(),
		LastFetched: time.Now(),
	}

	if err := r.store.UpsertRemoteUser(user); err != nil {
		return nil, fmt.Errorf("failed to store remote user: %w", err)
	}

	r.maybeProbe(domainName)

	// Read back so the UPDATE path returns the original row id.
	return r.store.ReadRemoteUserByAPID(actor.ID)
}

// LookupRemote reads the cached remote user without going over the network.
func (r *Resolver) LookupRemote(actorURI string) (*domain.User, error) {
	return r.store.ReadRemoteUserByAPID(actorURI)
}

// LookupLocal resolves a local actor by its route identifier: username for
// users, record id for games and characters.
func (r *Resolver) LookupLocal(kind domain.ActorKind, identifier string) (domain.Actor, error) {
	switch kind {
	case domain.KindUser:
		return r.store.ReadLocalUserByUsername(identifier)
	case domain.KindGame:
		id, err := uuid.Parse(identifier)
		if err != nil {
			return nil, fmt.Errorf("invalid game id: %w", err)
		}
		return r.store.ReadGameById(id)
	case domain.KindCharacter:
		id, err := uuid.Parse(identifier)
		if err != nil {
			return nil, fmt.Errorf("invalid character id: %w", err)
		}
		return r.store.ReadCharacterById(id)
	}
	return nil, fmt.Errorf("unknown actor kind: %s", kind)
}

// PublicKeyFor satisfies KeyFetcher for incoming signature verification.
func (r *Resolver) PublicKeyFor(actorURI string) (string, error) {
	user, err := r.ResolveOrCreateRemote(actorURI)
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

// maybeProbe kicks off an async NodeInfo probe for domains the instance
// catalog has not seen yet.
func (r *Resolver) maybeProbe(domainName string) {
	if r.prober == nil {
		return
	}
	known, err := r.store.ReadFederatedServerByDomain(domainName)
	if err == nil && known != nil {
		return
	}
	go func() {
		if err := r.prober.Probe(domainName); err != nil {
			log.Warnf("Nodeinfo probe for %s failed: %v", domainName, err)
		}
	}()
}

// extractDomain pulls the host out of an actor URI.
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("actor URI has no host: %s", actorURI)
	}
	return parsed.Host, nil
}
