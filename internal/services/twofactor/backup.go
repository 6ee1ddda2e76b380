// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/stem-ed-architects/backend/internal/services/password"
)

// BackupCodeCount is the number of one-time codes issued per set.
const BackupCodeCount = 10

// generateBackupCodes returns unique codes in the canonical NNNN-NNNN form.
func generateBackupCodes(count int) ([]string, error) {
	codes := make(map[string]struct{}, count)
	for len(codes) < count {
		a, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return nil, err
		}
		b, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return nil, err
		}
		codes[fmt.Sprintf("%04d-%04d", a.Int64(), b.Int64())] = struct{}{}
	}

	out := make([]string, 0, count)
	for code := range codes {
		out = append(out, code)
	}
	return out, nil
}

// hashBackupCodes bcrypt-hashes each code; plaintext codes are shown to
// the user exactly once and never persisted.
func hashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		h, err := password.Hash(code)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return hashes, nil
}

// encodeHashes serializes a hash list for the users row.
func encodeHashes(hashes []string) (string, error) {
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeHashes parses the stored hash list; malformed data reads as empty.
func decodeHashes(serialized *string) []string {
	if serialized == nil || *serialized == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(*serialized), &hashes); err != nil {
		return nil
	}
	return hashes
}

// normalizeBackupCode maps user input to the canonical NNNN-NNNN form.
func normalizeBackupCode(code string) string {
	stripped := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
	if len(stripped) != 8 {
		return ""
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return stripped[:4] + "-" + stripped[4:]
}

// matchBackupCode finds the first hash matching code and returns the
// remaining hashes. consumed is false when nothing matched.
func matchBackupCode(hashes []string, code string) (consumed bool, remaining []string) {
	normalized := normalizeBackupCode(code)
	if normalized == "" {
		return false, hashes
	}

	remaining = make([]string, 0, len(hashes))
	for _, h := range hashes {
		if !consumed && password.Verify(normalized, h) {
			consumed = true
			continue
		}
		remaining = append(remaining, h)
	}
	return consumed, remaining
}
