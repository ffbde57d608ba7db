package activitypub

import (
	"fmt"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/charmbracelet/log"
)

// Dispatcher turns local domain events into queued federation work. Call
// sites invoke it after their own transaction commits, so a crashed dispatch
// never leaves a half-written record behind, only an undelivered activity.
type Dispatcher struct {
	store   *db.DB
	worker  *Worker
	baseURL string
}

func NewDispatcher(store *db.DB, worker *Worker, baseURL string) *Dispatcher {
	return &Dispatcher{store: store, worker: worker, baseURL: baseURL}
}

// UserRegistered generates the signing key pair for a new local account.
// Existing keys are never overwritten.
func (d *Dispatcher) UserRegistered(user *domain.User) error {
	if user.Remote || user.PublicKey != "" {
		return nil
	}
	pair, err := util.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate keys: %w", err)
	}
	return d.store.UpdateUserKeys(user.Id, pair.Public, pair.Private)
}

// GameCreated generates the signing key pair for a new local game.
func (d *Dispatcher) GameCreated(game *domain.Game) error {
	if game.Remote || game.PublicKey != "" {
		return nil
	}
	pair, err := util.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate keys: %w", err)
	}
	return d.store.UpdateGameKeys(game.Id, pair.Public, pair.Private)
}

// ReportPublished broadcasts a freshly published session report to the
// game's remote followers. Draft and remote reports are skipped.
func (d *Dispatcher) ReportPublished(report *domain.Report) error {
	if report.Remote || report.Status != domain.ReportPublished {
		return nil
	}

	author, err := d.store.ReadUserById(report.AuthorId)
	if err != nil {
		return fmt.Errorf("report author not found: %w", err)
	}
	game, err := d.store.ReadGameById(report.GameId)
	if err != nil {
		return fmt.Errorf("report game not found: %w", err)
	}

	// The game actor announces the report; the Note keeps the author as
	// attributedTo. The activity actor must match the signing key's owner
	// or remote servers reject the delivery.
	note := BuildReportNote(d.baseURL, report, author.APID, game.APID)
	create := BuildCreate(d.baseURL, report.Id, game.APID, note, true)

	log.Infof("Dispatch: Broadcasting report %s to followers of game %s", report.Id, game.Id)
	return d.worker.Broadcast(create, game.APID, domain.GameTarget(game.Id))
}

// CharacterCreated announces a new character to the origin game's remote
// followers, with the character's actor document as the object.
func (d *Dispatcher) CharacterCreated(character *domain.Character) error {
	if character.Remote {
		return nil
	}

	game, err := d.store.ReadGameById(character.OriginGameId)
	if err != nil {
		return fmt.Errorf("character game not found: %w", err)
	}

	create := BuildCreate(d.baseURL, character.Id, game.APID, BuildActorDocument(character), false)

	return d.worker.Broadcast(create, game.APID, domain.GameTarget(game.Id))
}

// QuoteCreated broadcasts a public quote to the character's remote
// followers. Private and ephemeral quotes stay local.
func (d *Dispatcher) QuoteCreated(quote *domain.Quote) error {
	if quote.Remote || quote.Visibility != domain.QuotePublic {
		return nil
	}

	character, err := d.store.ReadCharacterById(quote.CharacterId)
	if err != nil {
		return fmt.Errorf("quote character not found: %w", err)
	}

	note := BuildQuoteNote(d.baseURL, quote, character.APID)
	create := BuildCreate(d.baseURL, quote.Id, character.APID, note, false)

	return d.worker.Broadcast(create, character.APID, domain.CharacterTarget(character.Id))
}

// LinkRequestCreated federates a new link request as an Offer to the target
// character's creator, when that creator lives on another instance.
func (d *Dispatcher) LinkRequestCreated(lr *domain.LinkRequest) error {
	requester, err := d.store.ReadUserById(lr.RequesterId)
	if err != nil {
		return fmt.Errorf("link requester not found: %w", err)
	}
	character, err := d.store.ReadCharacterById(lr.TargetCharacterId)
	if err != nil {
		return fmt.Errorf("link target character not found: %w", err)
	}
	creator, err := d.store.ReadUserById(character.CreatorId)
	if err != nil {
		return fmt.Errorf("character creator not found: %w", err)
	}
	if !creator.Remote || creator.InboxURL == "" {
		return nil
	}

	proposedURI := ""
	if lr.ProposedCharacterId != nil {
		proposed, err := d.store.ReadCharacterById(*lr.ProposedCharacterId)
		if err == nil {
			proposedURI = proposed.APID
		}
	}

	offer := BuildOffer(d.baseURL, lr, requester.APID, character.APID, proposedURI, creator.APID)

	log.Infof("Dispatch: Sending %s offer %s to %s", lr.Type, lr.Id, creator.Username)
	return d.worker.Enqueue(offer, requester.APID, creator.InboxURL)
}

// LinkRequestResolved notifies the remote requester that their Offer was
// accepted or rejected. Resolutions of local requests need no federation.
func (d *Dispatcher) LinkRequestResolved(lr *domain.LinkRequest) error {
	requester, err := d.store.ReadUserById(lr.RequesterId)
	if err != nil {
		return fmt.Errorf("link requester not found: %w", err)
	}
	if !requester.Remote || requester.InboxURL == "" {
		return nil
	}

	character, err := d.store.ReadCharacterById(lr.TargetCharacterId)
	if err != nil {
		return fmt.Errorf("link target character not found: %w", err)
	}
	creator, err := d.store.ReadUserById(character.CreatorId)
	if err != nil {
		return fmt.Errorf("character creator not found: %w", err)
	}

	activityType := "Accept"
	if lr.Status == domain.LinkRejected {
		activityType = "Reject"
	}

	response := BuildOfferResponse(d.baseURL, lr, activityType, creator.APID, requester.APID)

	return d.worker.Enqueue(response, creator.APID, requester.InboxURL)
}

// FollowCreated sends the Follow activity when a local user follows a
// remote actor. Follows of local targets are a plain database row.
func (d *Dispatcher) FollowCreated(follow *domain.Follow) error {
	follower, err := d.store.ReadUserById(follow.FollowerId)
	if err != nil {
		return fmt.Errorf("follower not found: %w", err)
	}
	if follower.Remote {
		return nil
	}

	target, err := d.resolveTarget(follow.Target)
	if err != nil {
		return fmt.Errorf("follow target not found: %w", err)
	}
	if !target.IsRemote() || target.ActorInbox() == "" {
		return nil
	}

	activity := BuildFollow(d.baseURL, follow, follower.APID, target.ActorURI())

	return d.worker.Enqueue(activity, follower.APID, target.ActorInbox())
}

// FollowRemoved sends the Undo of a previously federated Follow.
func (d *Dispatcher) FollowRemoved(follow *domain.Follow) error {
	follower, err := d.store.ReadUserById(follow.FollowerId)
	if err != nil {
		return fmt.Errorf("follower not found: %w", err)
	}
	if follower.Remote {
		return nil
	}

	target, err := d.resolveTarget(follow.Target)
	if err != nil {
		return fmt.Errorf("follow target not found: %w", err)
	}
	if !target.IsRemote() || target.ActorInbox() == "" {
		return nil
	}

	followURI := follow.URI
	if followURI == "" {
		followURI = fmt.Sprintf("%s/activities/follow/%s", d.baseURL, follow.Id)
	}
	undo := BuildUndo(d.baseURL, follower.APID, followURI)

	return d.worker.Enqueue(undo, follower.APID, target.ActorInbox())
}

func (d *Dispatcher) resolveTarget(target domain.FollowTarget) (domain.Actor, error) {
	switch target.Kind {
	case domain.KindUser:
		return d.store.ReadUserById(target.Id)
	case domain.KindGame:
		return d.store.ReadGameById(target.Id)
	case domain.KindCharacter:
		return d.store.ReadCharacterById(target.Id)
	}
	return nil, fmt.Errorf("unknown follow target kind: %s", target.Kind)
}
