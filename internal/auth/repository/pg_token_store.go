package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/common/db"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

const refreshTokenColumns = `id::text, user_id, token_hash, family_id::text, jti::text, sequence,
	replaced_by::text, revoked_at, reason, device_info, user_agent, ip_hash,
	expires_at, created_at, updated_at`

const tokenFamilyColumns = `id::text, user_id, role, device_info, user_agent, ip_hash,
	created_at, last_used_at, revoked_at`

const activeFamilyPredicate = `f.revoked_at IS NULL AND EXISTS (
	SELECT 1 FROM refresh_tokens t
	WHERE t.family_id = f.id AND t.revoked_at IS NULL AND t.expires_at > $2
)`

type PgTokenStore struct {
	pool  *pgxpool.Pool
	txMgr db.TxManager
	retry db.RetryConfig
	log   *logger.Logger
}

func NewPgTokenStore(pool *pgxpool.Pool, log *logger.Logger) *PgTokenStore {
	return &PgTokenStore{
		pool:  pool,
		txMgr: db.NewPgTxManager(pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}),
		retry: db.DefaultRetryConfig,
		log:   log,
	}
}

func (s *PgTokenStore) withTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return db.RetryWithBackoff(ctx, s.log, s.retry, func() error {
		return s.txMgr.WithTx(ctx, fn)
	})
}

func (s *PgTokenStore) CreateFamily(ctx context.Context, family authdomain.TokenFamily, first authdomain.RefreshToken, maxActive int) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		start := time.Now()
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, family.UserID)
		if err := db.HandleExecError(err, "lock user families", start); err != nil {
			return err
		}

		start = time.Now()
		var active int
		err = tx.QueryRow(
			ctx,
			`SELECT COUNT(*) FROM token_families f WHERE f.user_id = $1 AND `+activeFamilyPredicate,
			family.UserID,
			family.CreatedAt,
		).Scan(&active)
		if err := db.HandleQueryError(err, nil, "count active families", start); err != nil {
			return err
		}
		if active >= maxActive {
			return ErrFamilyLimitReached
		}

		start = time.Now()
		_, err = tx.Exec(
			ctx,
			`INSERT INTO token_families (id, user_id, role, device_info, user_agent, ip_hash, created_at, last_used_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			family.ID,
			family.UserID,
			family.Role,
			family.DeviceInfo,
			family.UserAgent,
			family.IPHash,
			family.CreatedAt,
			family.LastUsedAt,
		)
		if err := db.HandleExecError(err, "insert token family", start); err != nil {
			return err
		}

		return insertRefreshToken(ctx, tx, first)
	})
}

func insertRefreshToken(ctx context.Context, tx pgx.Tx, token authdomain.RefreshToken) error {
	start := time.Now()
	_, err := tx.Exec(
		ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, jti, sequence, device_info, user_agent, ip_hash, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.FamilyID,
		token.JTI,
		token.Sequence,
		token.DeviceInfo,
		token.UserAgent,
		token.IPHash,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if isUniqueViolation(err) {
		db.MeasureQueryDuration("insert refresh token", start)
		return ErrDuplicateToken
	}
	return db.HandleExecError(err, "insert refresh token", start)
}

func (s *PgTokenStore) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	start := time.Now()
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	)

	token, err := scanRefreshToken(row)
	if err := db.HandleQueryError(err, ErrTokenNotFound, "find refresh token", start); err != nil {
		return authdomain.RefreshToken{}, err
	}
	return token, nil
}

func (s *PgTokenStore) FindFamily(ctx context.Context, familyID string) (authdomain.TokenFamily, error) {
	start := time.Now()
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+tokenFamilyColumns+` FROM token_families WHERE id = $1`,
		familyID,
	)

	var family authdomain.TokenFamily
	err := row.Scan(
		&family.ID,
		&family.UserID,
		&family.Role,
		&family.DeviceInfo,
		&family.UserAgent,
		&family.IPHash,
		&family.CreatedAt,
		&family.LastUsedAt,
		&family.RevokedAt,
	)
	if isInvalidTextRepresentation(err) {
		err = pgx.ErrNoRows
	}
	if err := db.HandleQueryError(err, ErrFamilyNotFound, "find token family", start); err != nil {
		return authdomain.TokenFamily{}, err
	}
	return family, nil
}

func (s *PgTokenStore) ListActiveFamilies(ctx context.Context, userID string, now time.Time) ([]authdomain.FamilySummary, error) {
	start := time.Now()
	rows, err := s.pool.Query(
		ctx,
		`SELECT f.id::text, f.device_info, f.user_agent, f.created_at, f.last_used_at
		 FROM token_families f
		 WHERE f.user_id = $1 AND `+activeFamilyPredicate+`
		 ORDER BY f.last_used_at DESC, f.created_at DESC`,
		userID,
		now,
	)
	if err != nil {
		return nil, db.HandleQueryError(err, nil, "list active families", start)
	}
	defer rows.Close()

	var summaries []authdomain.FamilySummary
	for rows.Next() {
		var summary authdomain.FamilySummary
		if err := rows.Scan(&summary.FamilyID, &summary.DeviceInfo, &summary.UserAgent, &summary.CreatedAt, &summary.LastUsedAt); err != nil {
			return nil, db.HandleQueryError(err, nil, "scan active families", start)
		}
		summaries = append(summaries, summary)
	}
	if err := db.HandleQueryError(rows.Err(), nil, "list active families", start); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *PgTokenStore) Rotate(ctx context.Context, params RotateParams) error {
	successor := params.Successor
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		start := time.Now()
		res, err := tx.Exec(
			ctx,
			`UPDATE refresh_tokens
			 SET revoked_at = $2, reason = 'rotated', replaced_by = $3, updated_at = $2
			 WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2`,
			params.OldID,
			params.Now,
			successor.ID,
		)
		if err := db.HandleExecError(err, "retire refresh token", start); err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return ErrRotationConflict
		}

		if err := insertRefreshToken(ctx, tx, successor); err != nil {
			return err
		}

		start = time.Now()
		_, err = tx.Exec(
			ctx,
			`UPDATE token_families SET last_used_at = $2 WHERE id = $1`,
			successor.FamilyID,
			params.Now,
		)
		return db.HandleExecError(err, "touch token family", start)
	})
}

func (s *PgTokenStore) MarkExpired(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	start := time.Now()
	res, err := s.pool.Exec(
		ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = $2, reason = 'expired', updated_at = $2
		 WHERE id = $1 AND revoked_at IS NULL AND expires_at <= $2`,
		tokenID,
		now,
	)
	if err := db.HandleExecError(err, "expire refresh token", start); err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (s *PgTokenStore) RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	var revoked int64
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		start := time.Now()
		res, err := tx.Exec(
			ctx,
			`UPDATE refresh_tokens
			 SET revoked_at = $2, reason = $3, updated_at = $2
			 WHERE family_id = $1 AND revoked_at IS NULL`,
			familyID,
			now,
			string(reason),
		)
		if err := db.HandleExecError(err, "revoke family refresh tokens", start); err != nil {
			return err
		}
		revoked = res.RowsAffected()

		start = time.Now()
		_, err = tx.Exec(
			ctx,
			`UPDATE token_families SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
			familyID,
			now,
		)
		return db.HandleExecError(err, "revoke token family", start)
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

func (s *PgTokenStore) RevokeAllForUser(ctx context.Context, userID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	var revoked int64
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		start := time.Now()
		res, err := tx.Exec(
			ctx,
			`UPDATE refresh_tokens
			 SET revoked_at = $2, reason = $3, updated_at = $2
			 WHERE user_id = $1 AND revoked_at IS NULL`,
			userID,
			now,
			string(reason),
		)
		if err := db.HandleExecError(err, "revoke user refresh tokens", start); err != nil {
			return err
		}
		revoked = res.RowsAffected()

		start = time.Now()
		_, err = tx.Exec(
			ctx,
			`UPDATE token_families SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
			userID,
			now,
		)
		return db.HandleExecError(err, "revoke user token families", start)
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

func (s *PgTokenStore) MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	res, err := s.pool.Exec(
		ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = $1, reason = 'expired', updated_at = $1
		 WHERE revoked_at IS NULL AND expires_at <= $1`,
		now,
	)
	if err := db.HandleExecError(err, "expire stale refresh tokens", start); err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PgTokenStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := s.pool.Exec(
		ctx,
		`DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL AND revoked_at < $1`,
		cutoff,
	)
	if err := db.HandleExecError(err, "delete revoked refresh tokens", start); err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PgTokenStore) DeleteEmptyFamilies(ctx context.Context) (int64, error) {
	start := time.Now()
	res, err := s.pool.Exec(
		ctx,
		`DELETE FROM token_families f
		 WHERE NOT EXISTS (SELECT 1 FROM refresh_tokens t WHERE t.family_id = f.id)`,
	)
	if err := db.HandleExecError(err, "delete empty token families", start); err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PgTokenStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRefreshToken(row pgx.Row) (authdomain.RefreshToken, error) {
	var (
		token      authdomain.RefreshToken
		replacedBy *string
		reason     *string
	)
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.FamilyID,
		&token.JTI,
		&token.Sequence,
		&replacedBy,
		&token.RevokedAt,
		&reason,
		&token.DeviceInfo,
		&token.UserAgent,
		&token.IPHash,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return authdomain.RefreshToken{}, err
	}
	if replacedBy != nil {
		token.ReplacedBy = *replacedBy
	}
	if reason != nil {
		token.Reason = authdomain.RevocationReason(*reason)
	}
	return token, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
