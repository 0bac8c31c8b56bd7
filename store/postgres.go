package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"                 // registers the "postgres" driver
	"github.com/pressly/goose/v3"
)

// DBTX is the subset of database/sql used by the SQL store.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres implements Store on PostgreSQL. It works with either registered
// driver: "postgres" (lib/pq) or "pgx" (jackc/pgx stdlib).
type Postgres struct {
	db DBTX
}

// NewPostgres wraps a connection pool or a transaction.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// OpenDB opens and pings a database/sql pool for the given driver.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUp(ctx, db, ".")
}

// InTx runs fn against a Postgres store bound to a single transaction.
// When the store is already bound to a transaction fn runs inside it.
func (s *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return fn(s)
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		return fn(NewPostgres(tx))
	})
}

// withTx commits on success and rolls back on errors or panics.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	switch sqlState(err) {
	case "23505": // unique_violation
		return ErrConflict
	case "23503": // foreign_key_violation
		return ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func (s *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	u := User{Username: username, PasswordHash: passwordHash}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, username, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return User{}, classify(err)
	}
	return u, nil
}

func (s *Postgres) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, classify(err)
	}
	return u, nil
}

func (s *Postgres) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, classify(err)
	}
	return u, nil
}

func (s *Postgres) RenameUser(ctx context.Context, id int64, username string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET username = $2 WHERE id = $1`, id, username)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, bio, profile_image_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = NOW()
		RETURNING updated_at
	`, p.UserID, p.Bio, p.ImageURL).Scan(&p.UpdatedAt)
	if err != nil {
		return Profile{}, classify(err)
	}
	return p, nil
}

func (s *Postgres) ProfileByUserID(ctx context.Context, userID int64) (Profile, error) {
	p := Profile{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT bio, profile_image_url, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.Bio, &p.ImageURL, &p.UpdatedAt)
	if err != nil {
		return Profile{}, classify(err)
	}
	return p, nil
}

func (s *Postgres) Participants(ctx context.Context, ids []int64) (map[int64]Participant, error) {
	out := make(map[int64]Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, COALESCE(p.bio, ''), COALESCE(p.profile_image_url, '')
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.Bio, &p.ImageURL); err != nil {
			return nil, classify(err)
		}
		out[p.UserID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Postgres) CreatePurpose(ctx context.Context, p Purpose) (Purpose, error) {
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO purposes (user_id, title, description)
			VALUES ($1, $2, $3)
			RETURNING id, user_id, created_at
		)
		SELECT i.id, u.username, i.created_at
		FROM inserted i
		JOIN users u ON u.id = i.user_id
	`, p.OwnerID, p.Title, p.Description).Scan(&p.ID, &p.OwnerName, &p.CreatedAt)
	if err != nil {
		return Purpose{}, classify(err)
	}
	return p, nil
}

const purposeColumns = `p.id, p.user_id, u.username, p.title, p.description, p.created_at`

func scanPurpose(sc interface{ Scan(...any) error }, p *Purpose, extra ...any) error {
	dest := append([]any{&p.ID, &p.OwnerID, &p.OwnerName, &p.Title, &p.Description, &p.CreatedAt}, extra...)
	return sc.Scan(dest...)
}

func (s *Postgres) PurposeByID(ctx context.Context, id int64) (Purpose, error) {
	var p Purpose
	row := s.db.QueryRowContext(ctx, `
		SELECT `+purposeColumns+`
		FROM purposes p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, id)
	if err := scanPurpose(row, &p); err != nil {
		return Purpose{}, classify(err)
	}
	return p, nil
}

func (s *Postgres) Feed(ctx context.Context, userID int64) iter.Seq2[Purpose, error] {
	return func(yield func(Purpose, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+purposeColumns+`
			FROM purposes p
			JOIN users u ON u.id = p.user_id
			WHERE p.user_id <> $1
			  AND NOT EXISTS (SELECT 1 FROM interests i WHERE i.user_id = $1 AND i.purpose_id = p.id)
			  AND NOT EXISTS (SELECT 1 FROM seen_purposes s WHERE s.user_id = $1 AND s.purpose_id = p.id)
			ORDER BY p.created_at, p.id
		`, userID)
		if err != nil {
			yield(Purpose{}, classify(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var p Purpose
			if err := scanPurpose(rows, &p); err != nil {
				yield(Purpose{}, classify(err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Purpose{}, classify(err))
		}
	}
}

// insertOrNoop runs an INSERT ... ON CONFLICT DO NOTHING and reports whether
// a row was written.
func (s *Postgres) insertOrNoop(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}

func (s *Postgres) RecordInterest(ctx context.Context, userID, purposeID int64) (bool, error) {
	return s.insertOrNoop(ctx, `
		INSERT INTO interests (user_id, purpose_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, purpose_id) DO NOTHING
	`, userID, purposeID)
}

func (s *Postgres) RecordSeen(ctx context.Context, userID, purposeID int64) (bool, error) {
	return s.insertOrNoop(ctx, `
		INSERT INTO seen_purposes (user_id, purpose_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, purpose_id) DO NOTHING
	`, userID, purposeID)
}

func (s *Postgres) HasInterest(ctx context.Context, userID, purposeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM interests WHERE user_id = $1 AND purpose_id = $2)
	`, userID, purposeID).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (s *Postgres) InterestsForPoster(ctx context.Context, posterID int64) ([]InterestView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purposeColumns+`, i.user_id, i.created_at
		FROM interests i
		JOIN purposes p ON p.id = i.purpose_id
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM final_matches fm
			WHERE fm.purpose_id = i.purpose_id AND fm.interested_user_id = i.user_id
		  )
		ORDER BY i.created_at, p.id, i.user_id
	`, posterID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []InterestView
	for rows.Next() {
		var v InterestView
		if err := scanPurpose(rows, &v.Purpose, &v.InterestedUserID, &v.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Postgres) CreateMatch(ctx context.Context, m Match) (bool, error) {
	return s.insertOrNoop(ctx, `
		INSERT INTO final_matches (purpose_id, poster_id, interested_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (purpose_id, interested_user_id) DO NOTHING
	`, m.PurposeID, m.PosterID, m.InterestedUserID)
}

func (s *Postgres) AcceptMatch(ctx context.Context, purposeID, interestedUserID int64) (Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx, `
		UPDATE final_matches
		SET accepted_by_interested_user = TRUE
		WHERE purpose_id = $1
		  AND interested_user_id = $2
		  AND accepted_by_interested_user = FALSE
		RETURNING purpose_id, poster_id, interested_user_id, accepted_by_interested_user, created_at
	`, purposeID, interestedUserID).Scan(&m.PurposeID, &m.PosterID, &m.InterestedUserID, &m.AcceptedByInterestedUser, &m.CreatedAt)
	if err != nil {
		return Match{}, classify(err)
	}
	return m, nil
}

const matchViewQuery = `
	SELECT fm.purpose_id, fm.poster_id, fm.interested_user_id, fm.accepted_by_interested_user, fm.created_at,
	       ` + purposeColumns + `
	FROM final_matches fm
	JOIN purposes p ON p.id = fm.purpose_id
	JOIN users u ON u.id = p.user_id
`

func (s *Postgres) PendingMatchesFor(ctx context.Context, interestedUserID int64) ([]MatchView, error) {
	return s.queryMatchViews(ctx, matchViewQuery+`
		WHERE fm.interested_user_id = $1 AND fm.accepted_by_interested_user = FALSE
		ORDER BY fm.created_at, fm.purpose_id
	`, interestedUserID)
}

func (s *Postgres) MutualMatchesFor(ctx context.Context, userID int64) ([]MatchView, error) {
	return s.queryMatchViews(ctx, matchViewQuery+`
		WHERE (fm.poster_id = $1 OR fm.interested_user_id = $1) AND fm.accepted_by_interested_user = TRUE
		ORDER BY fm.created_at, fm.purpose_id
	`, userID)
}

func (s *Postgres) queryMatchViews(ctx context.Context, query string, args ...any) ([]MatchView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []MatchView
	for rows.Next() {
		var v MatchView
		m := &v.Match
		p := &v.Purpose
		if err := rows.Scan(
			&m.PurposeID, &m.PosterID, &m.InterestedUserID, &m.AcceptedByInterestedUser, &m.CreatedAt,
			&p.ID, &p.OwnerID, &p.OwnerName, &p.Title, &p.Description, &p.CreatedAt,
		); err != nil {
			return nil, classify(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, m Message) (Message, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, m.SenderID, m.ReceiverID, m.Text).Scan(&m.ID, &m.SentAt)
	if err != nil {
		return Message{}, classify(err)
	}
	return m, nil
}

func (s *Postgres) Conversation(ctx context.Context, a, b int64) ([]Message, error) {
	lo, hi := conversationKey(a, b)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, created_at
		FROM messages
		WHERE LEAST(sender_id, receiver_id) = $1 AND GREATEST(sender_id, receiver_id) = $2
		ORDER BY created_at ASC, id ASC
	`, lo, hi)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.SentAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
