package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Activity is the generic envelope of an incoming ActivityPub activity.
// Object stays raw because its shape depends on the type.
type Activity struct {
	Context interface{}     `json:"@context"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
	Summary string          `json:"summary"`
}

// Inbox dispatches incoming activities addressed to a local actor. The
// contract with remote servers: malformed JSON is 400, a bad signature is
// 401, everything after a valid signature is 202 even when the side
// effects fail. Handlers are idempotent, so redelivery is always safe.
type Inbox struct {
	store    *db.DB
	resolver *Resolver
	worker   *Worker
	baseURL  string
}

func NewInbox(store *db.DB, resolver *Resolver, worker *Worker, baseURL string) *Inbox {
	return &Inbox{store: store, resolver: resolver, worker: worker, baseURL: baseURL}
}

// Handle processes one POST to a local actor's inbox.
func (ib *Inbox) Handle(w http.ResponseWriter, r *http.Request, kind domain.ActorKind, identifier string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warnf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil || activity.Type == "" {
		log.Warnf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	// Verification reads the body again for the digest check.
	r.Body = io.NopCloser(bytes.NewReader(body))
	ok, detail := VerifyRequest(r, ib.resolver.PublicKeyFor)
	if !ok {
		log.Warnf("Inbox: Signature verification failed: %s", detail)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	log.Infof("Inbox: Received %s from %s", activity.Type, activity.Actor)

	switch activity.Type {
	case "Follow":
		err = ib.handleFollow(&activity, body, kind, identifier)
	case "Undo":
		err = ib.handleUndo(&activity)
	case "Offer":
		err = ib.handleOffer(&activity)
	case "Accept":
		err = ib.handleOfferResponse(&activity, domain.LinkAccepted)
	case "Reject":
		err = ib.handleOfferResponse(&activity, domain.LinkRejected)
	case "Create", "Update", "Delete":
		// Remote content is not mirrored yet, only acknowledged.
		log.Infof("Inbox: Ignoring %s of %s", activity.Type, objectId(activity.Object))
	default:
		log.Infof("Inbox: Unsupported activity type: %s", activity.Type)
	}

	if err != nil {
		log.Errorf("Inbox: Failed to handle %s: %v", activity.Type, err)
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleFollow stores the follow relationship and queues the Accept reply.
// Duplicate Follows hit the unique index and collapse into one row.
func (ib *Inbox) handleFollow(activity *Activity, body []byte, kind domain.ActorKind, identifier string) error {
	follower, err := ib.resolver.ResolveOrCreateRemote(activity.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve follower: %w", err)
	}

	target, err := ib.resolver.LookupLocal(kind, identifier)
	if err != nil {
		return fmt.Errorf("follow target not found: %w", err)
	}

	follow := &domain.Follow{
		Id:         uuid.New(),
		FollowerId: follower.Id,
		Target:     domain.FollowTarget{Kind: kind, Id: target.ActorId()},
		URI:        activity.ID,
		Remote:     true,
		CreatedAt:  time.Now(),
	}
	if err := ib.store.GetOrCreateFollow(follow); err != nil {
		return fmt.Errorf("failed to store follow: %w", err)
	}

	// Embed the original activity in the Accept so the remote side can
	// match it against its pending request.
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to reparse follow: %w", err)
	}
	accept := BuildAcceptFollow(ib.baseURL, target.ActorURI(), raw)

	if err := ib.worker.Enqueue(accept, target.ActorURI(), follower.InboxURL); err != nil {
		return fmt.Errorf("failed to queue Accept: %w", err)
	}

	log.Infof("Inbox: Accepted follow from %s", follower.Username)
	return nil
}

// handleUndo removes a follow relationship. Non-Follow objects are ignored.
func (ib *Inbox) handleUndo(activity *Activity) error {
	var object struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(activity.Object, &object); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}
	if object.Type != "Follow" {
		log.Infof("Inbox: Ignoring Undo of %s", object.Type)
		return nil
	}
	if object.ID == "" {
		return nil
	}

	if err := ib.store.DeleteFollowByURI(object.ID); err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}

	log.Infof("Inbox: Removed follow %s", object.ID)
	return nil
}

// handleOffer mirrors a remote link proposal as a pending LinkRequest. The
// Offer's object is a Relationship between the requester (or their proposed
// character) and one of our characters.
func (ib *Inbox) handleOffer(activity *Activity) error {
	var object struct {
		Type         string `json:"type"`
		Relationship string `json:"relationship"`
		Subject      string `json:"subject"`
		Object       string `json:"object"`
	}
	if err := json.Unmarshal(activity.Object, &object); err != nil {
		return fmt.Errorf("failed to parse Offer object: %w", err)
	}
	if object.Type != "Relationship" {
		log.Infof("Inbox: Ignoring Offer of %s", object.Type)
		return nil
	}

	linkType, ok := domain.ParseLinkType(object.Relationship)
	if !ok {
		log.Infof("Inbox: Ignoring Offer with relationship %q", object.Relationship)
		return nil
	}

	requester, err := ib.resolver.ResolveOrCreateRemote(activity.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve requester: %w", err)
	}

	character, err := ib.store.ReadLocalCharacterByAPID(object.Object)
	if err != nil {
		return fmt.Errorf("offer targets unknown character %s: %w", object.Object, err)
	}

	return ib.store.CreateLinkRequest(&domain.LinkRequest{
		Id:                uuid.New(),
		Type:              linkType,
		RequesterId:       requester.Id,
		TargetCharacterId: character.Id,
		Message:           activity.Summary,
		Status:            domain.LinkPending,
		CreatedAt:         time.Now(),
	})
}

// handleOfferResponse resolves a local link request when the remote side
// answers one of our Offers. The object must be our own Offer URI; anything
// else is a reply to something we did not send, so it is dropped.
func (ib *Inbox) handleOfferResponse(activity *Activity, status domain.LinkRequestStatus) error {
	var objectURI string
	if err := json.Unmarshal(activity.Object, &objectURI); err != nil {
		// Embedded objects here are Accepts of our Follows; the follow
		// already exists locally, nothing to update.
		log.Infof("Inbox: Ignoring %s with embedded object", status)
		return nil
	}

	id, ok := OfferIdFromURI(objectURI)
	if !ok {
		log.Infof("Inbox: Ignoring %s of foreign object %s", status, objectURI)
		return nil
	}

	lr, err := ib.store.ReadLinkRequestById(id)
	if err != nil {
		log.Infof("Inbox: %s references unknown link request %s", status, id)
		return nil
	}
	if lr.Status != domain.LinkPending {
		return nil
	}

	if err := ib.store.ResolveLinkRequest(lr.Id, status, activity.Summary, time.Now()); err != nil {
		return fmt.Errorf("failed to resolve link request: %w", err)
	}

	log.Infof("Inbox: Link request %s marked %s", lr.Id, status)
	return nil
}

// objectId pulls the id out of a raw object for log lines.
func objectId(raw json.RawMessage) string {
	var uri string
	if json.Unmarshal(raw, &uri) == nil {
		return uri
	}
	var object struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &object) == nil {
		return object.ID
	}
	return ""
}
