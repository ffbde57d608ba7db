package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorKind discriminates the three local entity types that can act on the
// fediverse, plus the remote marker used for cached federated users.
type ActorKind string

const (
	KindUser      ActorKind = "user"
	KindGame      ActorKind = "game"
	KindCharacter ActorKind = "character"
)

// Actor is the capability every federable entity exposes. Each concrete type
// implements it explicitly, so building an actor document never needs runtime
// attribute probing.
type Actor interface {
	ActorKind() ActorKind
	ActorId() uuid.UUID
	ActorURI() string
	ActorInbox() string
	DisplayedName() string
	Bio() string
	AvatarURL() string
	PublicKeyPEM() string
	PrivateKeyPEM() string
	IsRemote() bool
}

// User is a local account or a cached remote one. Remote users never hold a
// private key; APID is globally unique.
type User struct {
	Id          uuid.UUID
	Username    string
	Name        string
	Summary     string
	Avatar      string
	Remote      bool
	APID        string
	InboxURL    string
	OutboxURL   string
	PublicKey   string
	PrivateKey  string
	CreatedAt   time.Time
	LastFetched time.Time
}

func (u *User) ActorKind() ActorKind  { return KindUser }
func (u *User) ActorId() uuid.UUID    { return u.Id }
func (u *User) ActorURI() string      { return u.APID }
func (u *User) DisplayedName() string { return u.Name }
func (u *User) Bio() string           { return u.Summary }
func (u *User) AvatarURL() string     { return u.Avatar }
func (u *User) PublicKeyPEM() string  { return u.PublicKey }
func (u *User) PrivateKeyPEM() string { return u.PrivateKey }
func (u *User) IsRemote() bool        { return u.Remote }

func (u *User) ActorInbox() string {
	if u.Remote {
		return u.InboxURL
	}
	return u.APID + "/inbox"
}

// Game is a tabletop campaign. It owns the reports and characters created in
// it and acts as the broadcasting actor for those.
type Game struct {
	Id          uuid.UUID
	Title       string
	Description string
	GameSystem  string
	Public      bool
	OwnerId     uuid.UUID
	Remote      bool
	APID        string
	InboxURL    string
	PublicKey   string
	PrivateKey  string
	CreatedAt   time.Time
}

func (g *Game) ActorKind() ActorKind  { return KindGame }
func (g *Game) ActorId() uuid.UUID    { return g.Id }
func (g *Game) ActorURI() string      { return g.APID }
func (g *Game) DisplayedName() string { return g.Title }
func (g *Game) Bio() string           { return g.Description }
func (g *Game) AvatarURL() string     { return "" }
func (g *Game) PublicKeyPEM() string  { return g.PublicKey }
func (g *Game) PrivateKeyPEM() string { return g.PrivateKey }
func (g *Game) IsRemote() bool        { return g.Remote }

func (g *Game) ActorInbox() string {
	if g.Remote {
		return g.InboxURL
	}
	return g.APID + "/inbox"
}

type CharacterStatus string

const (
	CharacterNPC CharacterStatus = "npc"
	CharacterPC  CharacterStatus = "pc"
)

// Character belongs to a game and may be claimed, adopted or forked across
// instances via LinkRequests.
type Character struct {
	Id           uuid.UUID
	Name         string
	Description  string
	Status       CharacterStatus
	CreatorId    uuid.UUID
	OriginGameId uuid.UUID
	SheetURL     string
	Avatar       string
	Remote       bool
	APID         string
	InboxURL     string
	PublicKey    string
	PrivateKey   string
	CreatedAt    time.Time
}

func (c *Character) ActorKind() ActorKind  { return KindCharacter }
func (c *Character) ActorId() uuid.UUID    { return c.Id }
func (c *Character) ActorURI() string      { return c.APID }
func (c *Character) DisplayedName() string { return c.Name }
func (c *Character) Bio() string           { return c.Description }
func (c *Character) AvatarURL() string     { return c.Avatar }
func (c *Character) PublicKeyPEM() string  { return c.PublicKey }
func (c *Character) PrivateKeyPEM() string { return c.PrivateKey }
func (c *Character) IsRemote() bool        { return c.Remote }

func (c *Character) ActorInbox() string {
	if c.Remote {
		return c.InboxURL
	}
	return c.APID + "/inbox"
}

// LocalActorURI builds the canonical ActivityPub id for a local entity.
// Users are addressed by username, games and characters by id.
func LocalActorURI(baseURL string, kind ActorKind, identifier string) string {
	switch kind {
	case KindUser:
		return fmt.Sprintf("%s/users/%s", baseURL, identifier)
	case KindGame:
		return fmt.Sprintf("%s/games/%s", baseURL, identifier)
	case KindCharacter:
		return fmt.Sprintf("%s/characters/%s", baseURL, identifier)
	}
	return ""
}
