package domain

import (
	"time"

	"github.com/google/uuid"
)

// FollowTarget is the tagged union of things a follow can point at. The kind
// selects the table the id resolves against, checked at compile time instead
// of an opaque type discriminator.
type FollowTarget struct {
	Kind ActorKind
	Id   uuid.UUID
}

func UserTarget(id uuid.UUID) FollowTarget      { return FollowTarget{Kind: KindUser, Id: id} }
func GameTarget(id uuid.UUID) FollowTarget      { return FollowTarget{Kind: KindGame, Id: id} }
func CharacterTarget(id uuid.UUID) FollowTarget { return FollowTarget{Kind: KindCharacter, Id: id} }

// Follow represents a follow relationship, unique per (follower, target).
type Follow struct {
	Id         uuid.UUID
	FollowerId uuid.UUID // always a User row, local or remote
	Target     FollowTarget
	URI        string // ActivityPub Follow activity id (empty for local follows)
	Remote     bool
	CreatedAt  time.Time
}

type ServerStatus string

const (
	ServerUnknown   ServerStatus = "unknown"
	ServerFederated ServerStatus = "federated"
	ServerBlocked   ServerStatus = "blocked"
)

// FederatedServer is a known remote instance, populated from NodeInfo
// discovery. Rows are created on first probe and never auto-deleted.
type FederatedServer struct {
	Id                 uuid.UUID
	Domain             string
	ApplicationType    string
	ApplicationVersion string
	Status             ServerStatus
	UserCount          int
	LastCheckedAt      *time.Time
	CreatedAt          time.Time
}

// IsSuddenlyInstance reports whether the remote instance runs suddenly.
func (s *FederatedServer) IsSuddenlyInstance() bool {
	return s.ApplicationType == "suddenly"
}

// DeliveryQueueItem is one pending outbound delivery: a serialized activity,
// the inbox it goes to, and the local actor whose key signs the request
// (empty ActorURI means the instance key).
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActorURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
