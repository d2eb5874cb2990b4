package server

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hookTokenHashScheme = "pbkdf2"
	hookTokenIterations = 120000
	hookTokenSaltLength = 16
	hookTokenKeyLength  = 32
)

// HashHookToken derives a PBKDF2 digest for storing a webhook token at
// rest. The output format is pbkdf2$sha256$<iterations>$<salt>$<key> with
// base64 raw-std encoded salt and key.
func HashHookToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	salt := make([]byte, hookTokenSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(token), salt, hookTokenIterations, hookTokenKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("%s$sha256$%d$%s$%s", hookTokenHashScheme, hookTokenIterations, encodedSalt, encodedKey), nil
}

// VerifyHookToken compares a presented token against the configured value,
// which may be either a plain token or a HashHookToken digest. Comparison
// is constant time in both forms.
func VerifyHookToken(configured, presented string) bool {
	configured = strings.TrimSpace(configured)
	presented = strings.TrimSpace(presented)
	if configured == "" || presented == "" {
		return false
	}
	if strings.HasPrefix(configured, hookTokenHashScheme+"$") {
		return verifyHashedToken(configured, presented)
	}
	return constantTimeEqual(configured, presented)
}

func verifyHashedToken(stored, presented string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 5 || parts[1] != "sha256" {
		return false
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(presented), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(expected, derived) == 1
}

func constantTimeEqual(expected, provided string) bool {
	if len(expected) != len(provided) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func hookAuthorized(token string, r *http.Request) bool {
	if r == nil {
		return false
	}
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if VerifyHookToken(token, parts[1]) {
				return true
			}
		}
	}
	if queryToken := strings.TrimSpace(r.URL.Query().Get("token")); queryToken != "" {
		if VerifyHookToken(token, queryToken) {
			return true
		}
	}
	return false
}
