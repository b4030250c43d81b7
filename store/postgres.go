package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/splitlease/nightbid/core"
)

// Schema creates the bidding tables. Applied at startup in development;
// production deployments run it through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS bidding_sessions (
	session_id            TEXT PRIMARY KEY,
	listing_id            TEXT NOT NULL,
	target_night          TEXT NOT NULL,
	status                TEXT NOT NULL,
	started_at            TIMESTAMPTZ NOT NULL,
	expires_at            TIMESTAMPTZ NOT NULL,
	max_rounds            INT NOT NULL,
	min_increment_percent DOUBLE PRECISION NOT NULL,
	high_amount           DOUBLE PRECISION,
	high_user_id          TEXT,
	version               BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bidding_participants (
	session_id          TEXT NOT NULL REFERENCES bidding_sessions(session_id),
	user_id             TEXT NOT NULL,
	name                TEXT NOT NULL,
	position            INT NOT NULL,
	current_bid         DOUBLE PRECISION,
	max_auto_bid_amount DOUBLE PRECISION,
	is_winner           BOOLEAN NOT NULL DEFAULT FALSE,
	compensation        DOUBLE PRECISION,
	PRIMARY KEY (session_id, user_id)
);

CREATE TABLE IF NOT EXISTS bids (
	seq               BIGSERIAL PRIMARY KEY,
	bid_id            TEXT NOT NULL UNIQUE,
	session_id        TEXT NOT NULL REFERENCES bidding_sessions(session_id),
	user_id           TEXT NOT NULL,
	amount            DOUBLE PRECISION NOT NULL,
	round             INT NOT NULL,
	is_auto_bid       BOOLEAN NOT NULL,
	placed_at         TIMESTAMPTZ NOT NULL,
	previous_high_bid DOUBLE PRECISION,
	increment_amount  DOUBLE PRECISION,
	increment_percent DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_bids_session ON bids(session_id, seq);
`

// PostgresStore is the production SessionStore backed by PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL and configures the pool.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// EnsureSchema applies the bidding tables.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

type sessionRow struct {
	SessionID           string         `db:"session_id"`
	ListingID           string         `db:"listing_id"`
	TargetNight         string         `db:"target_night"`
	Status              string         `db:"status"`
	StartedAt           time.Time      `db:"started_at"`
	ExpiresAt           time.Time      `db:"expires_at"`
	MaxRounds           int            `db:"max_rounds"`
	MinIncrementPercent float64        `db:"min_increment_percent"`
	HighAmount          *float64       `db:"high_amount"`
	HighUserID          sql.NullString `db:"high_user_id"`
	Version             int64          `db:"version"`
}

type participantRow struct {
	SessionID        string   `db:"session_id"`
	UserID           string   `db:"user_id"`
	Name             string   `db:"name"`
	Position         int      `db:"position"`
	CurrentBid       *float64 `db:"current_bid"`
	MaxAutoBidAmount *float64 `db:"max_auto_bid_amount"`
	IsWinner         bool     `db:"is_winner"`
	Compensation     *float64 `db:"compensation"`
}

type bidRow struct {
	BidID            string    `db:"bid_id"`
	SessionID        string    `db:"session_id"`
	UserID           string    `db:"user_id"`
	Amount           float64   `db:"amount"`
	Round            int       `db:"round"`
	IsAutoBid        bool      `db:"is_auto_bid"`
	PlacedAt         time.Time `db:"placed_at"`
	PreviousHighBid  *float64  `db:"previous_high_bid"`
	IncrementAmount  *float64  `db:"increment_amount"`
	IncrementPercent *float64  `db:"increment_percent"`
}

func (p *PostgresStore) Create(ctx context.Context, session *core.Session) error {
	return p.transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO bidding_sessions
				(session_id, listing_id, target_night, status, started_at, expires_at,
				 max_rounds, min_increment_percent, high_amount, high_user_id, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id) DO NOTHING`,
			session.SessionID, session.ListingID, session.TargetNight, string(session.Status),
			session.StartedAt, session.ExpiresAt, session.MaxRounds, session.MinimumIncrementPercent,
			highAmount(session), highUserID(session), session.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrSessionExists, session.SessionID)
		}

		if err := upsertParticipants(ctx, tx, session); err != nil {
			return err
		}
		return insertBids(ctx, tx, session)
	})
}

func (p *PostgresStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row,
		`SELECT * FROM bidding_sessions WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var participants []participantRow
	if err := p.db.SelectContext(ctx, &participants,
		`SELECT * FROM bidding_participants WHERE session_id = $1 ORDER BY position`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	var bids []bidRow
	if err := p.db.SelectContext(ctx, &bids,
		`SELECT bid_id, session_id, user_id, amount, round, is_auto_bid, placed_at,
		        previous_high_bid, increment_amount, increment_percent
		 FROM bids WHERE session_id = $1 ORDER BY seq`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load bids: %w", err)
	}

	session := &core.Session{
		SessionID:               row.SessionID,
		ListingID:               row.ListingID,
		TargetNight:             row.TargetNight,
		Status:                  core.SessionStatus(row.Status),
		StartedAt:               row.StartedAt,
		ExpiresAt:               row.ExpiresAt,
		MaxRounds:               row.MaxRounds,
		MinimumIncrementPercent: row.MinIncrementPercent,
		Version:                 row.Version,
	}
	if row.HighAmount != nil && row.HighUserID.Valid {
		session.CurrentHighBid = &core.HighBid{Amount: *row.HighAmount, UserID: row.HighUserID.String}
	}

	session.Participants = make([]core.Participant, len(participants))
	for i, pr := range participants {
		session.Participants[i] = core.Participant{
			UserID:           pr.UserID,
			Name:             pr.Name,
			CurrentBid:       pr.CurrentBid,
			MaxAutoBidAmount: pr.MaxAutoBidAmount,
			IsWinner:         pr.IsWinner,
			Compensation:     pr.Compensation,
		}
	}

	session.BiddingHistory = make([]core.Bid, len(bids))
	for i, br := range bids {
		session.BiddingHistory[i] = core.Bid{
			BidID:            br.BidID,
			SessionID:        br.SessionID,
			UserID:           br.UserID,
			Amount:           br.Amount,
			Round:            br.Round,
			IsAutoBid:        br.IsAutoBid,
			Timestamp:        br.PlacedAt,
			PreviousHighBid:  br.PreviousHighBid,
			IncrementAmount:  br.IncrementAmount,
			IncrementPercent: br.IncrementPercent,
		}
	}

	return session, nil
}

func (p *PostgresStore) Update(ctx context.Context, session *core.Session) error {
	err := p.transact(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bidding_sessions
			SET status = $1, high_amount = $2, high_user_id = $3,
			    expires_at = $4, version = version + 1
			WHERE session_id = $5 AND version = $6`,
			string(session.Status), highAmount(session), highUserID(session),
			session.ExpiresAt, session.SessionID, session.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM bidding_sessions WHERE session_id = $1)`,
				session.SessionID); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, session.SessionID)
			}
			return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, session.SessionID, session.Version)
		}

		if err := upsertParticipants(ctx, tx, session); err != nil {
			return err
		}
		return insertBids(ctx, tx, session)
	})
	if err != nil {
		return err
	}

	session.Version++
	return nil
}

func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	ids := make([]string, 0)
	err := p.db.SelectContext(ctx, &ids, `
		SELECT session_id FROM bidding_sessions
		WHERE status IN ('pending', 'active') AND expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return ids, nil
}

// transact runs fn inside a transaction, rolling back on error or panic.
func (p *PostgresStore) transact(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertParticipants(ctx context.Context, tx *sqlx.Tx, session *core.Session) error {
	for i := range session.Participants {
		p := &session.Participants[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bidding_participants
				(session_id, user_id, name, position, current_bid, max_auto_bid_amount, is_winner, compensation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id, user_id) DO UPDATE
			SET current_bid = EXCLUDED.current_bid,
			    max_auto_bid_amount = EXCLUDED.max_auto_bid_amount,
			    is_winner = EXCLUDED.is_winner,
			    compensation = EXCLUDED.compensation`,
			session.SessionID, p.UserID, p.Name, i, p.CurrentBid, p.MaxAutoBidAmount, p.IsWinner, p.Compensation,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert participant %s: %w", p.UserID, err)
		}
	}
	return nil
}

// insertBids appends any history entries not yet persisted. Bid IDs are
// unique so replays are no-ops; seq assignment preserves insertion order.
func insertBids(ctx context.Context, tx *sqlx.Tx, session *core.Session) error {
	for i := range session.BiddingHistory {
		b := &session.BiddingHistory[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bids
				(bid_id, session_id, user_id, amount, round, is_auto_bid, placed_at,
				 previous_high_bid, increment_amount, increment_percent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (bid_id) DO NOTHING`,
			b.BidID, b.SessionID, b.UserID, b.Amount, b.Round, b.IsAutoBid, b.Timestamp,
			b.PreviousHighBid, b.IncrementAmount, b.IncrementPercent,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bid %s: %w", b.BidID, err)
		}
	}
	return nil
}

func highAmount(s *core.Session) *float64 {
	if s.CurrentHighBid == nil {
		return nil
	}
	return &s.CurrentHighBid.Amount
}

func highUserID(s *core.Session) sql.NullString {
	if s.CurrentHighBid == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.CurrentHighBid.UserID, Valid: true}
}
