package domain

import (
	"time"

	"github.com/google/uuid"
)

// LinkType enumerates the cross-instance character relationship proposals.
type LinkType string

const (
	LinkClaim LinkType = "claim"
	LinkAdopt LinkType = "adopt"
	LinkFork  LinkType = "fork"
)

// ParseLinkType maps an Offer's relationship string onto a LinkType.
// Unknown relationships return false, and the caller must no-op.
func ParseLinkType(relationship string) (LinkType, bool) {
	switch LinkType(relationship) {
	case LinkClaim, LinkAdopt, LinkFork:
		return LinkType(relationship), true
	}
	return "", false
}

type LinkRequestStatus string

const (
	LinkPending  LinkRequestStatus = "pending"
	LinkAccepted LinkRequestStatus = "accepted"
	LinkRejected LinkRequestStatus = "rejected"
)

// LinkRequest mirrors a claim/adopt/fork proposal between a requester and a
// target character. Remote Offers create pending requests here; our own
// requests federate out as Offer activities and are resolved by incoming
// Accept/Reject activities.
type LinkRequest struct {
	Id                  uuid.UUID
	Type                LinkType
	RequesterId         uuid.UUID
	TargetCharacterId   uuid.UUID
	ProposedCharacterId *uuid.UUID
	Message             string
	Status              LinkRequestStatus
	ResponseMessage     string
	CreatedAt           time.Time
	ResolvedAt          *time.Time
}
