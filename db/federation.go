package db

import (
	"database/sql"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertFollow = `INSERT INTO follows(id, follower_id, target_kind, target_id, uri, remote, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(follower_id, target_kind, target_id) DO NOTHING`
	sqlSelectFollow       = `SELECT id, follower_id, target_kind, target_id, uri, remote, created_at FROM follows`
	sqlDeleteFollow       = `DELETE FROM follows WHERE follower_id = ? AND target_kind = ? AND target_id = ?`
	sqlDeleteFollowByURI  = `DELETE FROM follows WHERE uri = ?`
	sqlSelectFollowerRows = `SELECT f.id, f.follower_id, f.target_kind, f.target_id, f.uri, f.remote, f.created_at
		FROM follows f WHERE f.target_kind = ? AND f.target_id = ?`
)

// GetOrCreateFollow inserts a follow relationship unless one already exists
// for the same (follower, target). Remote peers commonly double-send Follow
// activities; the unique index plus a single transaction keeps this
// idempotent under concurrent duplicate deliveries.
func (db *DB) GetOrCreateFollow(f *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			f.Id.String(), f.FollowerId.String(), string(f.Target.Kind),
			f.Target.Id.String(), f.URI, f.Remote, f.CreatedAt)
		return err
	})
}

func (db *DB) DeleteFollow(followerId uuid.UUID, target domain.FollowTarget) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollow, followerId.String(), string(target.Kind), target.Id.String())
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

// ReadFollowersOf returns every follow relationship targeting the given actor.
func (db *DB) ReadFollowersOf(target domain.FollowTarget) ([]domain.Follow, error) {
	rows, err := db.db.Query(sqlSelectFollowerRows, string(target.Kind), target.Id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		f, err := scanFollow(rows.Scan)
		if err != nil {
			return follows, err
		}
		follows = append(follows, *f)
	}
	return follows, rows.Err()
}

func (db *DB) ReadFollow(followerId uuid.UUID, target domain.FollowTarget) (*domain.Follow, error) {
	row := db.db.QueryRow(sqlSelectFollow+` WHERE follower_id = ? AND target_kind = ? AND target_id = ?`,
		followerId.String(), string(target.Kind), target.Id.String())
	return scanFollow(row.Scan)
}

func scanFollow(scan func(...any) error) (*domain.Follow, error) {
	var f domain.Follow
	var idStr, followerStr, kindStr, targetStr string
	err := scan(&idStr, &followerStr, &kindStr, &targetStr, &f.URI, &f.Remote, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.Id, _ = uuid.Parse(idStr)
	f.FollowerId, _ = uuid.Parse(followerStr)
	f.Target.Kind = domain.ActorKind(kindStr)
	f.Target.Id, _ = uuid.Parse(targetStr)
	return &f, nil
}

const (
	sqlInsertFederatedServer = `INSERT INTO federated_servers(id, domain, application_type, application_version, status, user_count, last_checked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			application_type = excluded.application_type,
			application_version = excluded.application_version,
			status = excluded.status,
			user_count = excluded.user_count,
			last_checked_at = excluded.last_checked_at`
	sqlSelectFederatedServer = `SELECT id, domain, application_type, application_version, status, user_count, last_checked_at, created_at FROM federated_servers WHERE domain = ?`
)

// UpsertFederatedServer records a NodeInfo probe result. Rows are created on
// first probe of a domain and updated on later probes, never deleted here.
func (db *DB) UpsertFederatedServer(s *domain.FederatedServer) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFederatedServer,
			s.Id.String(), s.Domain, s.ApplicationType, s.ApplicationVersion,
			string(s.Status), s.UserCount, nullableTime(s.LastCheckedAt), s.CreatedAt)
		return err
	})
}

func (db *DB) ReadFederatedServerByDomain(domainName string) (*domain.FederatedServer, error) {
	row := db.db.QueryRow(sqlSelectFederatedServer, domainName)
	var s domain.FederatedServer
	var idStr, status string
	var checked sql.NullTime
	err := row.Scan(&idStr, &s.Domain, &s.ApplicationType, &s.ApplicationVersion,
		&status, &s.UserCount, &checked, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Id, _ = uuid.Parse(idStr)
	s.Status = domain.ServerStatus(status)
	if checked.Valid {
		t := checked.Time
		s.LastCheckedAt = &t
	}
	return &s, nil
}

const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, inbox_uri, actor_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, actor_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryQueue,
			item.Id.String(), item.InboxURI, item.ActorURI, item.ActivityJSON,
			item.Attempts, item.NextRetryAt, item.CreatedAt)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(due time.Time, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, due, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr string
		if err := rows.Scan(&idStr, &item.InboxURI, &item.ActorURI, &item.ActivityJSON,
			&item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return items, err
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}
