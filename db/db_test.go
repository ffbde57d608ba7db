package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

// setupTestDB opens a throwaway database under t.TempDir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeLocalUser(t *testing.T, store *DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		Id:          uuid.New(),
		Username:    username,
		Name:        "Test " + username,
		APID:        "https://suddenly.example/users/" + username,
		CreatedAt:   time.Now(),
		LastFetched: time.Now(),
	}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func makeRemoteUser(t *testing.T, store *DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		Id:          uuid.New(),
		Username:    username + "@remote.example",
		Name:        username,
		Remote:      true,
		APID:        "https://remote.example/users/" + username,
		InboxURL:    "https://remote.example/users/" + username + "/inbox",
		PublicKey:   "pem",
		CreatedAt:   time.Now(),
		LastFetched: time.Now(),
	}
	if err := store.UpsertRemoteUser(user); err != nil {
		t.Fatalf("Failed to create remote user %s: %v", username, err)
	}
	return user
}

func makeGame(t *testing.T, store *DB, owner *domain.User, title string) *domain.Game {
	t.Helper()
	game := &domain.Game{
		Id:        uuid.New(),
		Title:     title,
		Public:    true,
		OwnerId:   owner.Id,
		CreatedAt: time.Now(),
	}
	game.APID = "https://suddenly.example/games/" + game.Id.String()
	if err := store.CreateGame(game); err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	return game
}

func makeCharacter(t *testing.T, store *DB, creator *domain.User, game *domain.Game, name string) *domain.Character {
	t.Helper()
	character := &domain.Character{
		Id:           uuid.New(),
		Name:         name,
		Status:       domain.CharacterNPC,
		CreatorId:    creator.Id,
		OriginGameId: game.Id,
		CreatedAt:    time.Now(),
	}
	character.APID = "https://suddenly.example/characters/" + character.Id.String()
	if err := store.CreateCharacter(character); err != nil {
		t.Fatalf("Failed to create character: %v", err)
	}
	return character
}

func TestUpsertRemoteUserRefreshesExistingRow(t *testing.T) {
	store := setupTestDB(t)

	first := makeRemoteUser(t, store, "alice")

	updated := &domain.User{
		Id:          uuid.New(),
		Username:    "alice@remote.example",
		Name:        "Alice Renamed",
		Remote:      true,
		APID:        first.APID,
		InboxURL:    first.InboxURL,
		PublicKey:   "new-pem",
		CreatedAt:   time.Now(),
		LastFetched: time.Now(),
	}
	if err := store.UpsertRemoteUser(updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stored, err := store.ReadRemoteUserByAPID(first.APID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.Id != first.Id {
		t.Errorf("Upsert replaced the row id: got %s, want %s", stored.Id, first.Id)
	}
	if stored.Name != "Alice Renamed" {
		t.Errorf("Name not refreshed: got %q", stored.Name)
	}
	if stored.PublicKey != "new-pem" {
		t.Errorf("Public key not refreshed: got %q", stored.PublicKey)
	}
}

func TestUserKeysWriteOnce(t *testing.T) {
	store := setupTestDB(t)
	user := makeLocalUser(t, store, "bob")

	if err := store.UpdateUserKeys(user.Id, "pub1", "priv1"); err != nil {
		t.Fatalf("First key write failed: %v", err)
	}
	if err := store.UpdateUserKeys(user.Id, "pub2", "priv2"); err != nil {
		t.Fatalf("Second key write errored: %v", err)
	}

	stored, err := store.ReadUserById(user.Id)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.PublicKey != "pub1" || stored.PrivateKey != "priv1" {
		t.Errorf("Keys were overwritten: got %q/%q", stored.PublicKey, stored.PrivateKey)
	}
}

func TestGetOrCreateFollowIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	owner := makeLocalUser(t, store, "owner")
	game := makeGame(t, store, owner, "Dragon Heist")
	follower := makeRemoteUser(t, store, "carol")

	target := domain.GameTarget(game.Id)
	for i := 0; i < 3; i++ {
		follow := &domain.Follow{
			Id:         uuid.New(),
			FollowerId: follower.Id,
			Target:     target,
			URI:        "https://remote.example/activities/follow/1",
			Remote:     true,
			CreatedAt:  time.Now(),
		}
		if err := store.GetOrCreateFollow(follow); err != nil {
			t.Fatalf("Follow insert %d failed: %v", i, err)
		}
	}

	follows, err := store.ReadFollowersOf(target)
	if err != nil {
		t.Fatalf("ReadFollowersOf failed: %v", err)
	}
	if len(follows) != 1 {
		t.Errorf("Expected 1 follow row, got %d", len(follows))
	}
}

func TestDeleteFollowByURI(t *testing.T) {
	store := setupTestDB(t)
	owner := makeLocalUser(t, store, "owner")
	game := makeGame(t, store, owner, "Curse of Strahd")
	follower := makeRemoteUser(t, store, "dave")

	follow := &domain.Follow{
		Id:         uuid.New(),
		FollowerId: follower.Id,
		Target:     domain.GameTarget(game.Id),
		URI:        "https://remote.example/activities/follow/42",
		Remote:     true,
		CreatedAt:  time.Now(),
	}
	if err := store.GetOrCreateFollow(follow); err != nil {
		t.Fatalf("Follow insert failed: %v", err)
	}

	if err := store.DeleteFollowByURI(follow.URI); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	follows, err := store.ReadFollowersOf(domain.GameTarget(game.Id))
	if err != nil {
		t.Fatalf("ReadFollowersOf failed: %v", err)
	}
	if len(follows) != 0 {
		t.Errorf("Expected no follows after delete, got %d", len(follows))
	}
}

func TestLinkRequestLifecycle(t *testing.T) {
	store := setupTestDB(t)
	owner := makeLocalUser(t, store, "gm")
	game := makeGame(t, store, owner, "Tomb of Annihilation")
	character := makeCharacter(t, store, owner, game, "Xandala")
	requester := makeRemoteUser(t, store, "eve")

	lr := &domain.LinkRequest{
		Id:                uuid.New(),
		Type:              domain.LinkAdopt,
		RequesterId:       requester.Id,
		TargetCharacterId: character.Id,
		Message:           "She joined our table",
		Status:            domain.LinkPending,
		CreatedAt:         time.Now(),
	}
	if err := store.CreateLinkRequest(lr); err != nil {
		t.Fatalf("CreateLinkRequest failed: %v", err)
	}

	pending, err := store.CountPendingLinkRequestsForCharacter(character.Id)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("Expected 1 pending request, got %d", pending)
	}

	if err := store.ResolveLinkRequest(lr.Id, domain.LinkAccepted, "welcome", time.Now()); err != nil {
		t.Fatalf("ResolveLinkRequest failed: %v", err)
	}

	stored, err := store.ReadLinkRequestById(lr.Id)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.Status != domain.LinkAccepted {
		t.Errorf("Expected accepted, got %s", stored.Status)
	}
	if stored.ResponseMessage != "welcome" {
		t.Errorf("Response message not stored: %q", stored.ResponseMessage)
	}
	if stored.ResolvedAt == nil {
		t.Error("ResolvedAt not stored")
	}

	pending, _ = store.CountPendingLinkRequestsForCharacter(character.Id)
	if pending != 0 {
		t.Errorf("Expected no pending requests after resolve, got %d", pending)
	}
}

func TestDeliveryQueueOrdering(t *testing.T) {
	store := setupTestDB(t)
	now := time.Now()

	due := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     "https://remote.example/inbox",
		ActivityJSON: "{}",
		NextRetryAt:  now.Add(-time.Minute),
		CreatedAt:    now.Add(-time.Minute),
	}
	future := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     "https://other.example/inbox",
		ActivityJSON: "{}",
		NextRetryAt:  now.Add(time.Hour),
		CreatedAt:    now,
	}
	for _, item := range []*domain.DeliveryQueueItem{due, future} {
		if err := store.EnqueueDelivery(item); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	items, err := store.ReadPendingDeliveries(now, 50)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 due item, got %d", len(items))
	}
	if items[0].Id != due.Id {
		t.Errorf("Wrong item returned: %s", items[0].Id)
	}

	if err := store.UpdateDeliveryAttempt(due.Id, 1, now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateDeliveryAttempt failed: %v", err)
	}
	items, _ = store.ReadPendingDeliveries(now, 50)
	if len(items) != 0 {
		t.Errorf("Expected no due items after backoff update, got %d", len(items))
	}

	if err := store.DeleteDelivery(due.Id); err != nil {
		t.Fatalf("DeleteDelivery failed: %v", err)
	}
}

func TestReadLocalActorByAPID(t *testing.T) {
	store := setupTestDB(t)
	owner := makeLocalUser(t, store, "frank")
	game := makeGame(t, store, owner, "Blades in the Dark")
	character := makeCharacter(t, store, owner, game, "Nyx")
	remote := makeRemoteUser(t, store, "grace")

	cases := []struct {
		apID string
		kind domain.ActorKind
	}{
		{owner.APID, domain.KindUser},
		{game.APID, domain.KindGame},
		{character.APID, domain.KindCharacter},
	}
	for _, tc := range cases {
		actor, err := store.ReadLocalActorByAPID(tc.apID)
		if err != nil {
			t.Fatalf("Lookup of %s failed: %v", tc.apID, err)
		}
		if actor.ActorKind() != tc.kind {
			t.Errorf("Expected kind %s for %s, got %s", tc.kind, tc.apID, actor.ActorKind())
		}
	}

	if _, err := store.ReadLocalActorByAPID(remote.APID); err == nil {
		t.Error("Remote actor resolved as local")
	}
	if _, err := store.ReadLocalActorByAPID("https://nowhere.example/users/nobody"); err != sql.ErrNoRows {
		t.Errorf("Expected ErrNoRows for unknown actor, got %v", err)
	}
}

func TestFederatedServerUpsert(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now()
	server := &domain.FederatedServer{
		Id:        uuid.New(),
		Domain:    "other.example",
		Status:    domain.ServerUnknown,
		CreatedAt: now,
	}
	if err := store.UpsertFederatedServer(server); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	server.Id = uuid.New()
	server.ApplicationType = "suddenly"
	server.ApplicationVersion = "0.1.0"
	server.Status = domain.ServerFederated
	server.UserCount = 12
	server.LastCheckedAt = &now
	if err := store.UpsertFederatedServer(server); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	stored, err := store.ReadFederatedServerByDomain("other.example")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.Status != domain.ServerFederated {
		t.Errorf("Status not updated: %s", stored.Status)
	}
	if stored.UserCount != 12 {
		t.Errorf("UserCount not updated: %d", stored.UserCount)
	}
	if !stored.IsSuddenlyInstance() {
		t.Error("Expected a suddenly instance")
	}
}

func TestCountLocalActors(t *testing.T) {
	store := setupTestDB(t)
	owner := makeLocalUser(t, store, "henry")
	makeRemoteUser(t, store, "iris")
	game := makeGame(t, store, owner, "Masks")
	makeCharacter(t, store, owner, game, "Aegis")

	users, err := store.CountLocalUsers()
	if err != nil {
		t.Fatalf("CountLocalUsers failed: %v", err)
	}
	if users != 1 {
		t.Errorf("Expected 1 local user, got %d", users)
	}

	games, _ := store.CountLocalGames()
	if games != 1 {
		t.Errorf("Expected 1 local game, got %d", games)
	}

	characters, _ := store.CountLocalCharacters()
	if characters != 1 {
		t.Errorf("Expected 1 local character, got %d", characters)
	}
}
