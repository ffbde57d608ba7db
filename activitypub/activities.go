package activitypub

import (
	"fmt"
	"strings"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/google/uuid"
)

// PublicAudience is the well-known public addressing collection.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

const offerPathMarker = "/activities/offer/"

// Context returns the standard JSON-LD context for outgoing documents.
func Context() []string {
	return []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
	}
}

func userAgent() string {
	return fmt.Sprintf("%s ActivityPub", util.GetNameAndVersion())
}

// The builders below are pure: every record and URI they need comes in as an
// argument, and output varies only through the published timestamps.

// BuildActorDocument renders any local actor as an ActivityPub Person.
func BuildActorDocument(a domain.Actor) map[string]any {
	uri := a.ActorURI()

	preferred := a.ActorId().String()
	if u, ok := a.(*domain.User); ok {
		preferred = u.Username
	}

	doc := map[string]any{
		"@context":          Context(),
		"id":                uri,
		"type":              "Person",
		"preferredUsername": preferred,
		"inbox":             uri + "/inbox",
		"outbox":            uri + "/outbox",
		"followers":         uri + "/followers",
		"following":         uri + "/following",
	}

	if name := a.DisplayedName(); name != "" {
		doc["name"] = name
	}
	if bio := a.Bio(); bio != "" {
		doc["summary"] = bio
	}
	if avatar := a.AvatarURL(); avatar != "" {
		doc["icon"] = map[string]any{
			"type": "Image",
			"url":  avatar,
		}
	}
	if pem := a.PublicKeyPEM(); pem != "" {
		doc["publicKey"] = map[string]any{
			"id":           uri + "#main-key",
			"owner":        uri,
			"publicKeyPem": pem,
		}
	}

	return doc
}

// BuildReportNote renders a published session report as a public Note
// attributed to its author, with the game actor as context.
func BuildReportNote(baseURL string, report *domain.Report, authorURI, gameURI string) map[string]any {
	id := report.APID
	if id == "" {
		id = fmt.Sprintf("%s/reports/%s", baseURL, report.Id)
	}

	published := time.Now().UTC()
	if report.PublishedAt != nil {
		published = report.PublishedAt.UTC()
	}

	note := map[string]any{
		"@context":     Context(),
		"id":           id,
		"type":         "Note",
		"attributedTo": authorURI,
		"content":      report.Content,
		"published":    published.Format(time.RFC3339),
		"to":           []string{PublicAudience},
		"cc":           []string{authorURI + "/followers"},
		"context":      gameURI,
	}
	if report.Title != "" {
		note["name"] = util.NormalizeInput(report.Title)
	}

	return note
}

// BuildQuoteNote renders a public quote as a Note attributed to the
// character who said it.
func BuildQuoteNote(baseURL string, quote *domain.Quote, characterURI string) map[string]any {
	id := quote.APID
	if id == "" {
		id = fmt.Sprintf("%s/quotes/%s", baseURL, quote.Id)
	}

	note := map[string]any{
		"@context":     Context(),
		"id":           id,
		"type":         "Note",
		"attributedTo": characterURI,
		"content":      fmt.Sprintf("%q", quote.Content),
	}
	if quote.Context != "" {
		note["context"] = quote.Context
	}
	if quote.ReportId != nil {
		note["inReplyTo"] = fmt.Sprintf("%s/reports/%s", baseURL, quote.ReportId)
	}

	return note
}

// BuildCreate wraps an object in a public Create activity. withFollowers
// adds the actor's followers collection to cc, which report publication
// uses and character/quote creation does not.
func BuildCreate(baseURL string, objectId uuid.UUID, actorURI string, object map[string]any, withFollowers bool) map[string]any {
	activity := map[string]any{
		"@context":  Context(),
		"id":        fmt.Sprintf("%s/activities/create/%s", baseURL, objectId),
		"type":      "Create",
		"actor":     actorURI,
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"object":    object,
	}
	if withFollowers {
		activity["cc"] = []string{actorURI + "/followers"}
	}
	return activity
}

// OfferURI is the canonical activity id of a link request's Offer. Accept
// and Reject replies reference it as their object.
func OfferURI(baseURL string, id uuid.UUID) string {
	return baseURL + offerPathMarker + id.String()
}

// OfferIdFromURI extracts the link request id from an Offer activity URI.
// Anything that is not ours, or not a UUID, reports false.
func OfferIdFromURI(uri string) (uuid.UUID, bool) {
	idx := strings.LastIndex(uri, offerPathMarker)
	if idx < 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(uri[idx+len(offerPathMarker):])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// BuildOffer renders a link request as an Offer whose object is a
// Relationship between requester and target character. For claims the
// subject is the proposed player character instead of the requester.
func BuildOffer(baseURL string, lr *domain.LinkRequest, requesterURI, targetCharacterURI, proposedCharacterURI, toURI string) map[string]any {
	subject := requesterURI
	if proposedCharacterURI != "" {
		subject = proposedCharacterURI
	}

	return map[string]any{
		"@context":  Context(),
		"id":        OfferURI(baseURL, lr.Id),
		"type":      "Offer",
		"actor":     requesterURI,
		"published": lr.CreatedAt.UTC().Format(time.RFC3339),
		"to":        []string{toURI},
		"object": map[string]any{
			"type":         "Relationship",
			"relationship": string(lr.Type),
			"subject":      subject,
			"object":       targetCharacterURI,
		},
		"summary": lr.Message,
	}
}

// BuildOfferResponse renders the Accept or Reject reply to a link request.
// The object is the Offer's activity URI, not an embedded copy.
func BuildOfferResponse(baseURL string, lr *domain.LinkRequest, activityType, actorURI, toURI string) map[string]any {
	published := time.Now().UTC()
	if lr.ResolvedAt != nil {
		published = lr.ResolvedAt.UTC()
	}

	activity := map[string]any{
		"@context":  Context(),
		"id":        fmt.Sprintf("%s/activities/%s/%s", baseURL, strings.ToLower(activityType), lr.Id),
		"type":      activityType,
		"actor":     actorURI,
		"published": published.Format(time.RFC3339),
		"to":        []string{toURI},
		"object":    OfferURI(baseURL, lr.Id),
	}
	if lr.ResponseMessage != "" {
		activity["summary"] = lr.ResponseMessage
	}
	return activity
}

// BuildFollow renders a locally stored follow as a Follow activity.
func BuildFollow(baseURL string, follow *domain.Follow, followerURI, targetURI string) map[string]any {
	return map[string]any{
		"@context":  Context(),
		"id":        fmt.Sprintf("%s/activities/follow/%s", baseURL, follow.Id),
		"type":      "Follow",
		"actor":     followerURI,
		"object":    targetURI,
		"published": time.Now().UTC().Format(time.RFC3339),
	}
}

// BuildUndo revokes a previously sent Follow. The original activity is
// embedded by reference so the remote side can match it against its records.
func BuildUndo(baseURL string, actorURI, followActivityId string) map[string]any {
	return map[string]any{
		"@context": Context(),
		"id":       fmt.Sprintf("%s/activities/undo/%s", baseURL, uuid.New()),
		"type":     "Undo",
		"actor":    actorURI,
		"object": map[string]any{
			"id":    followActivityId,
			"type":  "Follow",
			"actor": actorURI,
		},
		"published": time.Now().UTC().Format(time.RFC3339),
	}
}

// BuildAcceptFollow is the automatic reply to an incoming Follow. The
// original activity is embedded whole so the remote side can match it.
func BuildAcceptFollow(baseURL string, actorURI string, followActivity map[string]any) map[string]any {
	return map[string]any{
		"@context":  Context(),
		"id":        fmt.Sprintf("%s/activities/accept/%s", baseURL, uuid.New()),
		"type":      "Accept",
		"actor":     actorURI,
		"object":    followActivity,
		"published": time.Now().UTC().Format(time.RFC3339),
	}
}
