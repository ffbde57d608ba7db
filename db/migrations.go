package db

import "database/sql"

const (
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		remote INTEGER DEFAULT 0,
		ap_id TEXT UNIQUE,
		inbox_url TEXT DEFAULT '',
		outbox_url TEXT DEFAULT '',
		public_key TEXT DEFAULT '',
		private_key TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateUsersIndices = `
		CREATE INDEX IF NOT EXISTS idx_users_remote ON users(remote);
	`

	sqlCreateGamesTable = `CREATE TABLE IF NOT EXISTS games (
		id TEXT NOT NULL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		game_system TEXT DEFAULT '',
		public INTEGER DEFAULT 1,
		owner_id TEXT NOT NULL,
		remote INTEGER DEFAULT 0,
		ap_id TEXT UNIQUE,
		inbox_url TEXT DEFAULT '',
		public_key TEXT DEFAULT '',
		private_key TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCharactersTable = `CREATE TABLE IF NOT EXISTS characters (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		status TEXT DEFAULT 'npc',
		creator_id TEXT NOT NULL,
		origin_game_id TEXT NOT NULL,
		sheet_url TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		remote INTEGER DEFAULT 0,
		ap_id TEXT UNIQUE,
		inbox_url TEXT DEFAULT '',
		public_key TEXT DEFAULT '',
		private_key TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCharactersIndices = `
		CREATE INDEX IF NOT EXISTS idx_characters_ap_id ON characters(ap_id);
		CREATE INDEX IF NOT EXISTS idx_characters_origin_game ON characters(origin_game_id);
	`

	sqlCreateReportsTable = `CREATE TABLE IF NOT EXISTS reports (
		id TEXT NOT NULL PRIMARY KEY,
		game_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		title TEXT DEFAULT '',
		content TEXT NOT NULL,
		status TEXT DEFAULT 'draft',
		published_at TIMESTAMP,
		remote INTEGER DEFAULT 0,
		ap_id TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateReportsIndices = `
		CREATE INDEX IF NOT EXISTS idx_reports_game_id ON reports(game_id);
		CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	`

	sqlCreateQuotesTable = `CREATE TABLE IF NOT EXISTS quotes (
		id TEXT NOT NULL PRIMARY KEY,
		character_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		context TEXT DEFAULT '',
		visibility TEXT DEFAULT 'public',
		report_id TEXT,
		remote INTEGER DEFAULT 0,
		ap_id TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateLinkRequestsTable = `CREATE TABLE IF NOT EXISTS link_requests (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		target_character_id TEXT NOT NULL,
		proposed_character_id TEXT,
		message TEXT DEFAULT '',
		status TEXT DEFAULT 'pending',
		response_message TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMP
	)`

	sqlCreateLinkRequestsIndices = `
		CREATE INDEX IF NOT EXISTS idx_link_requests_status ON link_requests(status);
		CREATE INDEX IF NOT EXISTS idx_link_requests_target ON link_requests(target_character_id);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		follower_id TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		uri TEXT DEFAULT '',
		remote INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(follower_id, target_kind, target_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_target ON follows(target_kind, target_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	sqlCreateFederatedServersTable = `CREATE TABLE IF NOT EXISTS federated_servers (
		id TEXT NOT NULL PRIMARY KEY,
		domain TEXT UNIQUE NOT NULL,
		application_type TEXT DEFAULT '',
		application_version TEXT DEFAULT '',
		status TEXT DEFAULT 'unknown',
		user_count INTEGER DEFAULT 0,
		last_checked_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		actor_uri TEXT DEFAULT '',
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// Migrate creates all tables and indices. Statements are idempotent.
func (db *DB) Migrate() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		stmts := []string{
			sqlCreateUsersTable,
			sqlCreateUsersIndices,
			sqlCreateGamesTable,
			sqlCreateCharactersTable,
			sqlCreateCharactersIndices,
			sqlCreateReportsTable,
			sqlCreateReportsIndices,
			sqlCreateQuotesTable,
			sqlCreateLinkRequestsTable,
			sqlCreateLinkRequestsIndices,
			sqlCreateFollowsTable,
			sqlCreateFollowsIndices,
			sqlCreateFederatedServersTable,
			sqlCreateDeliveryQueueTable,
			sqlCreateDeliveryQueueIndices,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
