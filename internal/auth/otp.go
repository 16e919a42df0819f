// Package auth implements the credential primitives behind sign-in: one-time
// passcodes sent by email, and the signed session cookie.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// OTPLen is the number of digits in a one-time passcode.
const OTPLen = 6

// GenOTP returns a new random numeric passcode of OTPLen digits.
func GenOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPLen; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPLen, n), nil
}

// HashOTP returns the digest stored for a passcode. The digest is
// deterministic for a given (secret, email, otp) triple so that redemption
// can be a single conditional DELETE matching the stored value.
func HashOTP(secret, email, otp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(email))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(otp))
	return hex.EncodeToString(mac.Sum(nil))
}
