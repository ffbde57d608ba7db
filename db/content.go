package db

import (
	"database/sql"

	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertReport = `INSERT INTO reports(id, game_id, author_id, title, content, status, published_at, remote, ap_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectReport = `SELECT id, game_id, author_id, title, content, status, published_at, remote, COALESCE(ap_id, ''), created_at FROM reports`
)

func (db *DB) CreateReport(r *domain.Report) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReport,
			r.Id.String(), r.GameId.String(), r.AuthorId.String(),
			r.Title, r.Content, string(r.Status), nullableTime(r.PublishedAt),
			r.Remote, apid(r.APID), r.CreatedAt)
		return err
	})
}

func (db *DB) ReadReportById(id uuid.UUID) (*domain.Report, error) {
	row := db.db.QueryRow(sqlSelectReport+` WHERE id = ?`, id.String())
	return scanReport(row.Scan)
}

// ReadPublishedReports returns the newest published local reports, most
// recent first.
func (db *DB) ReadPublishedReports(limit int) ([]domain.Report, error) {
	rows, err := db.db.Query(sqlSelectReport+` WHERE status = 'published' AND remote = 0 ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// ReadPublishedReportsByGame returns a game's published reports for its
// outbox collection.
func (db *DB) ReadPublishedReportsByGame(gameId uuid.UUID, limit int) ([]domain.Report, error) {
	rows, err := db.db.Query(sqlSelectReport+` WHERE game_id = ? AND status = 'published' ORDER BY published_at DESC LIMIT ?`, gameId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// ReadPublishedReportsByAuthor returns a user's published reports for their
// outbox collection.
func (db *DB) ReadPublishedReportsByAuthor(authorId uuid.UUID, limit int) ([]domain.Report, error) {
	rows, err := db.db.Query(sqlSelectReport+` WHERE author_id = ? AND status = 'published' ORDER BY published_at DESC LIMIT ?`, authorId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (db *DB) CountPublishedReports() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE status = 'published' AND remote = 0`).Scan(&n)
	return n, err
}

func scanReport(scan func(...any) error) (*domain.Report, error) {
	var r domain.Report
	var idStr, gameStr, authorStr, status string
	var published sql.NullTime
	err := scan(&idStr, &gameStr, &authorStr, &r.Title, &r.Content, &status,
		&published, &r.Remote, &r.APID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Id, _ = uuid.Parse(idStr)
	r.GameId, _ = uuid.Parse(gameStr)
	r.AuthorId, _ = uuid.Parse(authorStr)
	r.Status = domain.ReportStatus(status)
	if published.Valid {
		t := published.Time
		r.PublishedAt = &t
	}
	return &r, nil
}

const (
	sqlInsertQuote = `INSERT INTO quotes(id, character_id, author_id, content, context, visibility, report_id, remote, ap_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectQuote = `SELECT id, character_id, author_id, content, context, visibility, report_id, remote, COALESCE(ap_id, ''), created_at FROM quotes`
)

func (db *DB) CreateQuote(q *domain.Quote) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var reportId any
		if q.ReportId != nil {
			reportId = q.ReportId.String()
		}
		_, err := tx.Exec(sqlInsertQuote,
			q.Id.String(), q.CharacterId.String(), q.AuthorId.String(),
			q.Content, q.Context, string(q.Visibility), reportId,
			q.Remote, apid(q.APID), q.CreatedAt)
		return err
	})
}

func (db *DB) ReadQuoteById(id uuid.UUID) (*domain.Quote, error) {
	row := db.db.QueryRow(sqlSelectQuote+` WHERE id = ?`, id.String())
	return scanQuote(row.Scan)
}

// ReadPublicQuotesByCharacter returns a character's public quotes for its
// outbox collection.
func (db *DB) ReadPublicQuotesByCharacter(characterId uuid.UUID, limit int) ([]domain.Quote, error) {
	rows, err := db.db.Query(sqlSelectQuote+` WHERE character_id = ? AND visibility = 'public' ORDER BY created_at DESC LIMIT ?`, characterId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows.Scan)
		if err != nil {
			return quotes, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func scanQuote(scan func(...any) error) (*domain.Quote, error) {
	var q domain.Quote
	var idStr, charStr, authorStr, visibility string
	var reportId sql.NullString
	err := scan(&idStr, &charStr, &authorStr, &q.Content, &q.Context, &visibility,
		&reportId, &q.Remote, &q.APID, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.Id, _ = uuid.Parse(idStr)
	q.CharacterId, _ = uuid.Parse(charStr)
	q.AuthorId, _ = uuid.Parse(authorStr)
	q.Visibility = domain.QuoteVisibility(visibility)
	if reportId.Valid {
		id, err := uuid.Parse(reportId.String)
		if err == nil {
			q.ReportId = &id
		}
	}
	return &q, nil
}
