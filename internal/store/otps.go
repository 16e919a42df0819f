package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertOTP stores the digest of a freshly issued passcode for an email
// address, replacing any earlier one and resetting the expiry window. Only
// the most recent passcode per address is ever valid.
func (s *PostgresStore) UpsertOTP(ctx context.Context, email, otpHash string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otps (email, otp, expiry)
		VALUES ($1, $2, NOW() + $3::interval)
		ON CONFLICT (email)
		DO UPDATE SET otp = EXCLUDED.otp, expiry = EXCLUDED.expiry
	`, email, otpHash, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return fmt.Errorf("upsert otp: %w", err)
	}
	return nil
}

// RedeemOTP consumes a passcode in a single conditional delete. The delete
// succeeds only when the digest matches and the passcode has not expired,
// which makes redemption atomic: two concurrent attempts with the same code
// cannot both win.
func (s *PostgresStore) RedeemOTP(ctx context.Context, email, otpHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM otps
		WHERE email = $1 AND otp = $2 AND NOW() <= expiry
	`, email, otpHash)
	if err != nil {
		return false, fmt.Errorf("redeem otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redeem otp rows: %w", err)
	}
	return n == 1, nil
}
