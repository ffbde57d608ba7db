package activitypub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/google/uuid"
)

// countingServer records inbox deliveries and answers with a fixed status.
type countingServer struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	verified []bool
	fetch    KeyFetcher
}

func newCountingServer(t *testing.T, status int, fetch KeyFetcher) (*countingServer, *httptest.Server) {
	t.Helper()
	cs := &countingServer{status: status, fetch: fetch}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.requests = append(cs.requests, r.Clone(r.Context()))
		if cs.fetch != nil {
			ok, _ := VerifyRequest(r, cs.fetch)
			cs.verified = append(cs.verified, ok)
		}
		cs.mu.Unlock()
		w.WriteHeader(cs.status)
	}))
	t.Cleanup(srv.Close)
	return cs, srv
}

func (cs *countingServer) hits() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.requests)
}

func pendingCount(t *testing.T, env *testEnv) int {
	t.Helper()
	items, err := env.store.ReadPendingDeliveries(time.Now().Add(24*time.Hour), 100)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	return len(items)
}

func TestWorkerDeliversSignedActivity(t *testing.T) {
	env := newTestEnv(t)

	instanceKeyId := env.conf.BaseURL() + "/actor#main-key"
	cs, srv := newCountingServer(t, http.StatusAccepted, fetcherReturning(env.instanceKey.Public))

	activity := map[string]any{"type": "Create", "id": "https://suddenly.example/activities/1"}
	if err := env.worker.Enqueue(activity, "", srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()

	if cs.hits() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", cs.hits())
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Delivered item still queued")
	}

	req := cs.requests[0]
	if req.Header.Get("Signature") == "" {
		t.Error("Delivery is not signed")
	}
	if req.Header.Get("Digest") == "" {
		t.Error("Delivery carries no Digest header")
	}
	if req.Header.Get("Content-Type") != "application/activity+json" {
		t.Errorf("Wrong content type: %s", req.Header.Get("Content-Type"))
	}
	if !cs.verified[0] {
		t.Error("Signature did not verify against the instance key")
	}
	if got := req.Header.Get("Signature"); !strings.Contains(got, instanceKeyId) {
		t.Errorf("Signature does not name the instance key: %s", got)
	}
}

func TestWorkerSignsWithActorKey(t *testing.T) {
	env := newTestEnv(t)
	owner := seedLocalUser(t, env, "gm")

	pair, err := util.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate keys: %v", err)
	}
	if err := env.store.UpdateUserKeys(owner.Id, pair.Public, pair.Private); err != nil {
		t.Fatalf("Failed to store keys: %v", err)
	}

	cs, srv := newCountingServer(t, http.StatusOK, fetcherReturning(pair.Public))

	activity := map[string]any{"type": "Accept", "id": owner.APID + "/activities/accept/1"}
	if err := env.worker.Enqueue(activity, owner.APID, srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()

	if cs.hits() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", cs.hits())
	}
	if !cs.verified[0] {
		t.Error("Signature did not verify against the actor key")
	}
	if got := cs.requests[0].Header.Get("Signature"); !strings.Contains(got, owner.APID+"#main-key") {
		t.Errorf("Signature does not name the actor key: %s", got)
	}
}

func TestWorkerRetriesWithBackoffThenGivesUp(t *testing.T) {
	env := newTestEnv(t)

	current := time.Now()
	env.worker.now = func() time.Time { return current }

	cs, srv := newCountingServer(t, http.StatusServiceUnavailable, nil)

	activity := map[string]any{"type": "Create"}
	if err := env.worker.Enqueue(activity, "", srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Initial attempt fails and schedules the first retry.
	env.worker.processQueue()
	if cs.hits() != 1 {
		t.Fatalf("Expected 1 attempt, got %d", cs.hits())
	}

	// Not due yet, the queue run is a no-op.
	env.worker.processQueue()
	if cs.hits() != 1 {
		t.Fatalf("Retried before the backoff elapsed: %d attempts", cs.hits())
	}

	// Walk the clock past each backoff window: 60s, 120s, 240s.
	for i, backoff := range []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second} {
		current = current.Add(backoff + time.Second)
		env.worker.processQueue()
		if cs.hits() != i+2 {
			t.Fatalf("Expected %d attempts after backoff %s, got %d", i+2, backoff, cs.hits())
		}
	}

	if cs.hits() != 4 {
		t.Fatalf("Expected 4 total attempts, got %d", cs.hits())
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Abandoned delivery still queued")
	}

	// Long after the last window: nothing left to retry.
	current = current.Add(time.Hour)
	env.worker.processQueue()
	if cs.hits() != 4 {
		t.Errorf("Delivery retried after being abandoned: %d attempts", cs.hits())
	}
}

func TestWorkerDropsOnClientError(t *testing.T) {
	env := newTestEnv(t)

	cs, srv := newCountingServer(t, http.StatusForbidden, nil)

	if err := env.worker.Enqueue(map[string]any{"type": "Create"}, "", srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()
	env.worker.processQueue()

	if cs.hits() != 1 {
		t.Errorf("Expected a single attempt for a 403, got %d", cs.hits())
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Rejected delivery still queued")
	}
}

func TestWorkerKeylessActorFallsBackToInstanceKey(t *testing.T) {
	env := newTestEnv(t)
	owner := seedLocalUser(t, env, "gm") // never given a key pair

	instanceKeyId := env.conf.BaseURL() + "/actor#main-key"
	cs, srv := newCountingServer(t, http.StatusOK, fetcherReturning(env.instanceKey.Public))

	if err := env.worker.Enqueue(map[string]any{"type": "Create"}, owner.APID, srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()

	if cs.hits() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", cs.hits())
	}
	if !cs.verified[0] {
		t.Error("Signature did not verify against the instance key")
	}
	if got := cs.requests[0].Header.Get("Signature"); !strings.Contains(got, instanceKeyId) {
		t.Errorf("Signature does not name the instance key: %s", got)
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Delivered item still queued")
	}
}

// Characters never carry their own key pair, so activities they send (the
// Accept replying to a character follow, quote broadcasts) go out under the
// instance key.
func TestWorkerDeliversCharacterSignedAccept(t *testing.T) {
	env := newTestEnv(t)
	owner := seedLocalUser(t, env, "gm")
	game := seedLocalGame(t, env, owner, "Alien RPG")
	character := seedLocalCharacter(t, env, owner, game, "Ripley")

	cs, srv := newCountingServer(t, http.StatusAccepted, fetcherReturning(env.instanceKey.Public))

	follow := map[string]any{
		"id":     "https://remote.example/activities/follow/1",
		"type":   "Follow",
		"actor":  "https://remote.example/users/eve",
		"object": character.APID,
	}
	accept := BuildAcceptFollow(env.conf.BaseURL(), character.APID, follow)
	if err := env.worker.Enqueue(accept, character.APID, srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()

	if cs.hits() != 1 {
		t.Fatalf("Expected the Accept to be delivered, got %d requests", cs.hits())
	}
	if !cs.verified[0] {
		t.Error("Signature did not verify against the instance key")
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Delivered Accept still queued")
	}
}

func TestWorkerDropsWhenActorUnknown(t *testing.T) {
	env := newTestEnv(t)

	cs, srv := newCountingServer(t, http.StatusOK, nil)

	actorURI := env.conf.BaseURL() + "/users/deleted"
	if err := env.worker.Enqueue(map[string]any{"type": "Create"}, actorURI, srv.URL+"/inbox"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	env.worker.processQueue()

	if cs.hits() != 0 {
		t.Errorf("Delivery for an unknown actor reached the wire: %d requests", cs.hits())
	}
	if pendingCount(t, env) != 0 {
		t.Errorf("Unsignable delivery still queued")
	}
}

func TestBroadcastDeduplicatesSharedInboxes(t *testing.T) {
	env := newTestEnv(t)
	owner := seedLocalUser(t, env, "gm")
	game := seedLocalGame(t, env, owner, "Alien RPG")

	sharedInbox := "https://remote.example/inbox"
	for _, name := range []string{"eve", "mallory", "trent"} {
		follower, _ := seedRemoteActor(t, env, name)
		follower.InboxURL = sharedInbox
		if err := env.store.UpsertRemoteUser(follower); err != nil {
			t.Fatalf("Failed to update follower inbox: %v", err)
		}
		follow := &domain.Follow{
			Id:         uuid.New(),
			FollowerId: follower.Id,
			Target:     domain.GameTarget(game.Id),
			URI:        "https://remote.example/activities/follow/" + name,
			Remote:     true,
			CreatedAt:  time.Now(),
		}
		if err := env.store.GetOrCreateFollow(follow); err != nil {
			t.Fatalf("Failed to store follow: %v", err)
		}
	}

	// A local follower never gets a federated copy.
	local := seedLocalUser(t, env, "watcher")
	localFollow := &domain.Follow{
		Id:         uuid.New(),
		FollowerId: local.Id,
		Target:     domain.GameTarget(game.Id),
		URI:        env.conf.BaseURL() + "/activities/follow/watcher",
		CreatedAt:  time.Now(),
	}
	if err := env.store.GetOrCreateFollow(localFollow); err != nil {
		t.Fatalf("Failed to store local follow: %v", err)
	}

	activity := map[string]any{"type": "Create", "id": game.APID + "/activities/1"}
	if err := env.worker.Broadcast(activity, game.APID, domain.GameTarget(game.Id)); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if n := pendingCount(t, env); n != 1 {
		t.Errorf("Expected 1 queued delivery for the shared inbox, got %d", n)
	}
}

