// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // RFC 6238 mandates HMAC-SHA1 for authenticator compatibility
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// generateTOTPSecret returns a fresh base32-encoded shared secret.
func generateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(raw), nil
}

// provisioningURI builds the otpauth:// URI encoded into the setup QR code.
func provisioningURI(issuer, account, secret string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprintf("%d", totpDigits))
	v.Set("period", fmt.Sprintf("%d", totpPeriod))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// verifyTOTP checks code against the secret at the given time, allowing
// skew time-steps of clock drift in either direction. The input is
// normalized first: spaces and dashes stripped.
func verifyTOTP(secret, code string, now time.Time, skew int) (bool, error) {
	normalized := normalizeDigits(code)
	if len(normalized) != totpDigits {
		return false, nil
	}

	key, err := base32NoPad.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false, errors.New("malformed totp secret")
	}

	counter := now.Unix() / totpPeriod
	for step := -skew; step <= skew; step++ {
		c := counter + int64(step)
		if c < 0 {
			continue
		}
		want := hotpCode(key, c)
		if subtle.ConstantTimeCompare([]byte(want), []byte(normalized)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// CodeAt computes the TOTP code for a base32 secret at the given time.
// Enrollment tooling and tests use it to produce codes without an
// authenticator app.
func CodeAt(secret string, at time.Time) (string, error) {
	key, err := base32NoPad.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", errors.New("malformed totp secret")
	}
	return hotpCode(key, at.Unix()/totpPeriod), nil
}

// hotpCode computes the RFC 4226 HOTP value for a counter.
func hotpCode(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", totpDigits, bin%mod)
}

// normalizeDigits strips spaces and dashes and rejects non-digits.
func normalizeDigits(code string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(code) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			// ignore separators
		default:
			return ""
		}
	}
	return b.String()
}
