package db

import (
	"database/sql"
	"time"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertUser = `INSERT INTO users(id, username, name, summary, avatar_url, remote, ap_id, inbox_url, outbox_url, public_key, private_key, created_at, last_fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateRemoteUser = `UPDATE users SET username = ?, name = ?, summary = ?, avatar_url = ?, inbox_url = ?, outbox_url = ?, public_key = ?, last_fetched_at = ? WHERE ap_id = ?`
	sqlUpdateUserKeys   = `UPDATE users SET public_key = ?, private_key = ? WHERE id = ? AND public_key = ''`
	sqlSelectUser       = `SELECT id, username, name, summary, avatar_url, remote, COALESCE(ap_id, ''), inbox_url, outbox_url, public_key, private_key, created_at, last_fetched_at FROM users`
)

func (db *DB) CreateUser(u *domain.User) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertUser,
			u.Id.String(), u.Username, u.Name, u.Summary, u.Avatar,
			u.Remote, apid(u.APID), u.InboxURL, u.OutboxURL,
			u.PublicKey, u.PrivateKey, u.CreatedAt, u.LastFetched)
		return err
	})
}

// UpsertRemoteUser creates or refreshes the cached record for a remote actor,
// keyed by its ActivityPub id.
func (db *DB) UpsertRemoteUser(u *domain.User) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlUpdateRemoteUser,
			u.Username, u.Name, u.Summary, u.Avatar,
			u.InboxURL, u.OutboxURL, u.PublicKey, u.LastFetched, u.APID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.Exec(sqlInsertUser,
			u.Id.String(), u.Username, u.Name, u.Summary, u.Avatar,
			true, u.APID, u.InboxURL, u.OutboxURL,
			u.PublicKey, "", u.CreatedAt, u.LastFetched)
		return err
	})
}

// UpdateUserKeys stores a freshly generated key pair. Keys are written once;
// a user that already has a public key is left untouched.
func (db *DB) UpdateUserKeys(id uuid.UUID, publicKey, privateKey string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateUserKeys, publicKey, privateKey, id.String())
		return err
	})
}

func (db *DB) ReadUserById(id uuid.UUID) (*domain.User, error) {
	return db.scanUser(db.db.QueryRow(sqlSelectUser+` WHERE id = ?`, id.String()))
}

// ReadLocalUserByUsername resolves a local user by name, excluding cached
// remote records.
func (db *DB) ReadLocalUserByUsername(username string) (*domain.User, error) {
	return db.scanUser(db.db.QueryRow(sqlSelectUser+` WHERE username = ? AND remote = 0`, username))
}

func (db *DB) ReadUserByAPID(apID string) (*domain.User, error) {
	return db.scanUser(db.db.QueryRow(sqlSelectUser+` WHERE ap_id = ?`, apID))
}

func (db *DB) ReadRemoteUserByAPID(apID string) (*domain.User, error) {
	return db.scanUser(db.db.QueryRow(sqlSelectUser+` WHERE ap_id = ? AND remote = 1`, apID))
}

func (db *DB) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var idStr string
	err := row.Scan(&idStr, &u.Username, &u.Name, &u.Summary, &u.Avatar,
		&u.Remote, &u.APID, &u.InboxURL, &u.OutboxURL,
		&u.PublicKey, &u.PrivateKey, &u.CreatedAt, &u.LastFetched)
	if err != nil {
		return nil, err
	}
	u.Id, _ = uuid.Parse(idStr)
	return &u, nil
}

const (
	sqlInsertGame = `INSERT INTO games(id, title, description, game_system, public, owner_id, remote, ap_id, inbox_url, public_key, private_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateGameKeys = `UPDATE games SET public_key = ?, private_key = ? WHERE id = ? AND public_key = ''`
	sqlSelectGame     = `SELECT id, title, description, game_system, public, owner_id, remote, COALESCE(ap_id, ''), inbox_url, public_key, private_key, created_at FROM games`
)

func (db *DB) CreateGame(g *domain.Game) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertGame,
			g.Id.String(), g.Title, g.Description, g.GameSystem, g.Public,
			g.OwnerId.String(), g.Remote, apid(g.APID), g.InboxURL,
			g.PublicKey, g.PrivateKey, g.CreatedAt)
		return err
	})
}

func (db *DB) UpdateGameKeys(id uuid.UUID, publicKey, privateKey string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateGameKeys, publicKey, privateKey, id.String())
		return err
	})
}

func (db *DB) ReadGameById(id uuid.UUID) (*domain.Game, error) {
	return db.scanGame(db.db.QueryRow(sqlSelectGame+` WHERE id = ?`, id.String()))
}

func (db *DB) scanGame(row *sql.Row) (*domain.Game, error) {
	var g domain.Game
	var idStr, ownerStr string
	err := row.Scan(&idStr, &g.Title, &g.Description, &g.GameSystem, &g.Public,
		&ownerStr, &g.Remote, &g.APID, &g.InboxURL,
		&g.PublicKey, &g.PrivateKey, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.Id, _ = uuid.Parse(idStr)
	g.OwnerId, _ = uuid.Parse(ownerStr)
	return &g, nil
}

const (
	sqlInsertCharacter = `INSERT INTO characters(id, name, description, status, creator_id, origin_game_id, sheet_url, avatar_url, remote, ap_id, inbox_url, public_key, private_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCharacter = `SELECT id, name, description, status, creator_id, origin_game_id, sheet_url, avatar_url, remote, COALESCE(ap_id, ''), inbox_url, public_key, private_key, created_at FROM characters`
)

func (db *DB) CreateCharacter(c *domain.Character) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertCharacter,
			c.Id.String(), c.Name, c.Description, string(c.Status),
			c.CreatorId.String(), c.OriginGameId.String(), c.SheetURL, c.Avatar,
			c.Remote, apid(c.APID), c.InboxURL, c.PublicKey, c.PrivateKey, c.CreatedAt)
		return err
	})
}

func (db *DB) ReadCharacterById(id uuid.UUID) (*domain.Character, error) {
	return db.scanCharacter(db.db.QueryRow(sqlSelectCharacter+` WHERE id = ?`, id.String()))
}

// ReadLocalCharacterByAPID resolves a character by its public ActivityPub id,
// requiring a local (non-remote) record. Used to match incoming Offers.
func (db *DB) ReadLocalCharacterByAPID(apID string) (*domain.Character, error) {
	return db.scanCharacter(db.db.QueryRow(sqlSelectCharacter+` WHERE ap_id = ? AND remote = 0`, apID))
}

func (db *DB) scanCharacter(row *sql.Row) (*domain.Character, error) {
	var c domain.Character
	var idStr, creatorStr, gameStr, status string
	err := row.Scan(&idStr, &c.Name, &c.Description, &status,
		&creatorStr, &gameStr, &c.SheetURL, &c.Avatar,
		&c.Remote, &c.APID, &c.InboxURL, &c.PublicKey, &c.PrivateKey, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Id, _ = uuid.Parse(idStr)
	c.CreatorId, _ = uuid.Parse(creatorStr)
	c.OriginGameId, _ = uuid.Parse(gameStr)
	c.Status = domain.CharacterStatus(status)
	return &c, nil
}

// ReadLocalActorByAPID finds whichever local entity owns the given actor id.
// Delivery uses it to locate the signing key for a queued activity.
func (db *DB) ReadLocalActorByAPID(apID string) (domain.Actor, error) {
	if u, err := db.scanUser(db.db.QueryRow(sqlSelectUser+` WHERE ap_id = ? AND remote = 0`, apID)); err == nil {
		return u, nil
	}
	if g, err := db.scanGame(db.db.QueryRow(sqlSelectGame+` WHERE ap_id = ? AND remote = 0`, apID)); err == nil {
		return g, nil
	}
	if c, err := db.scanCharacter(db.db.QueryRow(sqlSelectCharacter+` WHERE ap_id = ? AND remote = 0`, apID)); err == nil {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (db *DB) CountLocalUsers() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM users WHERE remote = 0`).Scan(&n)
	return n, err
}

func (db *DB) CountLocalGames() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM games WHERE remote = 0`).Scan(&n)
	return n, err
}

func (db *DB) CountLocalCharacters() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM characters WHERE remote = 0`).Scan(&n)
	return n, err
}

// apid turns an empty ActivityPub id into NULL so the unique index ignores
// rows that have not been addressed yet.
func apid(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts optional timestamps for storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
