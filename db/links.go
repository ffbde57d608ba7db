package db

import (
	"database/sql"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertLinkRequest = `INSERT INTO link_requests(id, type, requester_id, target_character_id, proposed_character_id, message, status, response_message, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateLinkRequestStatus = `UPDATE link_requests SET status = ?, response_message = ?, resolved_at = ? WHERE id = ?`
	sqlSelectLinkRequest       = `SELECT id, type, requester_id, target_character_id, proposed_character_id, message, status, response_message, created_at, resolved_at FROM link_requests`
)

func (db *DB) CreateLinkRequest(lr *domain.LinkRequest) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var proposed any
		if lr.ProposedCharacterId != nil {
			proposed = lr.ProposedCharacterId.String()
		}
		_, err := tx.Exec(sqlInsertLinkRequest,
			lr.Id.String(), string(lr.Type), lr.RequesterId.String(),
			lr.TargetCharacterId.String(), proposed, lr.Message,
			string(lr.Status), lr.ResponseMessage, lr.CreatedAt,
			nullableTime(lr.ResolvedAt))
		return err
	})
}

// ResolveLinkRequest records the remote peer's decision on one of our Offers.
func (db *DB) ResolveLinkRequest(id uuid.UUID, status domain.LinkRequestStatus, responseMessage string, resolvedAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateLinkRequestStatus, string(status), responseMessage, resolvedAt, id.String())
		return err
	})
}

func (db *DB) ReadLinkRequestById(id uuid.UUID) (*domain.LinkRequest, error) {
	row := db.db.QueryRow(sqlSelectLinkRequest+` WHERE id = ?`, id.String())
	var lr domain.LinkRequest
	var idStr, typeStr, requesterStr, targetStr, status string
	var proposed sql.NullString
	var resolved sql.NullTime
	err := row.Scan(&idStr, &typeStr, &requesterStr, &targetStr, &proposed,
		&lr.Message, &status, &lr.ResponseMessage, &lr.CreatedAt, &resolved)
	if err != nil {
		return nil, err
	}
	lr.Id, _ = uuid.Parse(idStr)
	lr.Type = domain.LinkType(typeStr)
	lr.RequesterId, _ = uuid.Parse(requesterStr)
	lr.TargetCharacterId, _ = uuid.Parse(targetStr)
	lr.Status = domain.LinkRequestStatus(status)
	if proposed.Valid {
		id, err := uuid.Parse(proposed.String)
		if err == nil {
			lr.ProposedCharacterId = &id
		}
	}
	if resolved.Valid {
		t := resolved.Time
		lr.ResolvedAt = &t
	}
	return &lr, nil
}

// CountPendingLinkRequestsForCharacter reports how many pending proposals
// target the given character.
func (db *DB) CountPendingLinkRequestsForCharacter(characterId uuid.UUID) (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM link_requests WHERE target_character_id = ? AND status = 'pending'`, characterId.String()).Scan(&n)
	return n, err
}
