package activitypub

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// One initial attempt plus up to three retries per queued delivery.
	maxDeliveryRetries = 3
	retryBaseBackoff   = 60 * time.Second
	deliveryBatchSize  = 50
)

// permanentDeliveryError marks a delivery that retrying cannot fix, either
// a 4xx from the remote inbox or a broken local signing key.
type permanentDeliveryError struct {
	reason string
}

func (e *permanentDeliveryError) Error() string {
	return e.reason
}

// Worker drains the durable delivery queue on a ticker. Every attempt
// re-signs the request with a fresh Date header; transient failures back
// off exponentially, client errors are dropped on the first response.
type Worker struct {
	store       *db.DB
	conf        *util.AppConfig
	instanceKey *util.RsaKeyPair
	client      *http.Client
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
}

func NewWorker(store *db.DB, conf *util.AppConfig, instanceKey *util.RsaKeyPair) *Worker {
	return &Worker{
		store:       store,
		conf:        conf,
		instanceKey: instanceKey,
		client:      &http.Client{Timeout: 30 * time.Second},
		interval:    10 * time.Second,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

// Start launches the background queue loop.
func (w *Worker) Start() {
	log.Info("Starting ActivityPub delivery worker...")

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.processQueue()
			case <-w.done:
				return
			}
		}
	}()
}

// Stop terminates the queue loop. In-flight deliveries finish; anything
// undelivered stays queued for the next run.
func (w *Worker) Stop() {
	close(w.done)
}

// Enqueue persists an activity for delivery to a single inbox. actorURI
// names the local actor whose key signs the request; empty means the
// instance key.
func (w *Worker) Enqueue(activity map[string]any, actorURI, inboxURI string) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to serialize activity: %w", err)
	}

	return w.store.EnqueueDelivery(&domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     inboxURI,
		ActorURI:     actorURI,
		ActivityJSON: string(payload),
		Attempts:     0,
		NextRetryAt:  w.now(),
		CreatedAt:    w.now(),
	})
}

// Broadcast fans an activity out to every remote follower of a target,
// deduplicating shared inboxes so each remote server receives one copy.
func (w *Worker) Broadcast(activity map[string]any, actorURI string, target domain.FollowTarget) error {
	follows, err := w.store.ReadFollowersOf(target)
	if err != nil {
		return fmt.Errorf("failed to read followers: %w", err)
	}

	seen := make(map[string]bool)
	for _, follow := range follows {
		follower, err := w.store.ReadUserById(follow.FollowerId)
		if err != nil {
			log.Warnf("Broadcast: unknown follower %s: %v", follow.FollowerId, err)
			continue
		}
		if !follower.Remote || follower.InboxURL == "" || seen[follower.InboxURL] {
			continue
		}
		seen[follower.InboxURL] = true

		if err := w.Enqueue(activity, actorURI, follower.InboxURL); err != nil {
			return err
		}
	}

	return nil
}

// processQueue delivers everything that is due, batch-limited.
func (w *Worker) processQueue() {
	items, err := w.store.ReadPendingDeliveries(w.now(), deliveryBatchSize)
	if err != nil {
		log.Errorf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	log.Infof("DeliveryWorker: Processing %d pending deliveries", len(items))

	for _, item := range items {
		err := w.deliver(&item)
		if err == nil {
			log.Infof("DeliveryWorker: Delivered to %s", item.InboxURI)
			w.store.DeleteDelivery(item.Id)
			continue
		}

		if perm, ok := err.(*permanentDeliveryError); ok {
			log.Errorf("DeliveryWorker: Dropping delivery to %s: %v", item.InboxURI, perm)
			w.store.DeleteDelivery(item.Id)
			continue
		}

		// Backoff doubles per attempt: 60s, 120s, 240s.
		backoff := time.Duration(1<<item.Attempts) * retryBaseBackoff
		item.Attempts++
		if item.Attempts > maxDeliveryRetries {
			log.Errorf("DeliveryWorker: Giving up on delivery to %s after %d attempts: %v",
				item.InboxURI, item.Attempts, err)
			w.store.DeleteDelivery(item.Id)
			continue
		}

		item.NextRetryAt = w.now().Add(backoff)
		log.Warnf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %s: %v",
			item.InboxURI, item.Attempts, backoff, err)
		w.store.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
	}
}

// deliver performs a single signed POST of a queued activity.
func (w *Worker) deliver(item *domain.DeliveryQueueItem) error {
	privateKey, keyId, err := w.signingKey(item.ActorURI)
	if err != nil {
		// A local actor without a private key is a data error, not a
		// remote hiccup; retrying cannot fix it.
		return &permanentDeliveryError{reason: fmt.Sprintf("signing key unavailable: %v", err)}
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", userAgent())

	if err := SignRequest(req, body, privateKey, keyId); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentDeliveryError{reason: fmt.Sprintf("remote inbox rejected activity with status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
}

// signingKey resolves the private key for a queued item. An empty actor URI
// selects the instance-level key, as does a local actor that carries no key
// of its own (characters never get per-actor keys), so every queued activity
// stays deliverable. Unknown actors and unparseable key material are data
// errors the caller classifies as permanent.
func (w *Worker) signingKey(actorURI string) (*rsa.PrivateKey, string, error) {
	if actorURI == "" {
		return w.instanceSigningKey()
	}

	actor, err := w.store.ReadLocalActorByAPID(actorURI)
	if err != nil {
		return nil, "", fmt.Errorf("no local actor for %s: %w", actorURI, err)
	}
	if actor.PrivateKeyPEM() == "" {
		return w.instanceSigningKey()
	}

	key, err := ParsePrivateKey(actor.PrivateKeyPEM())
	if err != nil {
		return nil, "", err
	}
	return key, actorURI + "#main-key", nil
}

func (w *Worker) instanceSigningKey() (*rsa.PrivateKey, string, error) {
	key, err := ParsePrivateKey(w.instanceKey.Private)
	if err != nil {
		return nil, "", err
	}
	return key, w.conf.BaseURL() + "/actor#main-key", nil
}
