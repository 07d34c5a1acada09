// Package auth provides publisher token generation and hashing
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Word lists for the readable part of generated tokens
var (
	tokenAdjectives = []string{
		"amber", "brisk", "calm", "dusty", "eager", "faint", "gentle", "hollow",
		"icy", "jolly", "keen", "lucky", "mellow", "nimble", "odd", "plain",
		"quiet", "rapid", "sturdy", "tidy", "upper", "vivid", "wry", "young",
		"bold", "crisp", "deep", "even", "fresh", "grand", "hardy", "ivory",
	}

	tokenNouns = []string{
		"anvil", "basalt", "chisel", "drill", "ember", "flint", "granite", "hammer",
		"ingot", "jasper", "kiln", "ledge", "marble", "nugget", "onyx", "pick",
		"quartz", "ridge", "slate", "talc", "umber", "vein", "wedge", "xenon",
		"yard", "zinc", "boulder", "cairn", "dolomite", "emery", "feldspar", "gneiss",
	}

	tokenHexPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// GenerateAPIKey generates a publisher token of the form
// {adjective}-{noun}-{32 hex chars}. The hex part carries 128 bits of entropy;
// the words only make tokens easier to tell apart in logs and configs.
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, 18)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	adjective := tokenAdjectives[int(randomBytes[0])%len(tokenAdjectives)]
	noun := tokenNouns[int(randomBytes[1])%len(tokenNouns)]

	return fmt.Sprintf("%s-%s-%s", adjective, noun, hex.EncodeToString(randomBytes[2:])), nil
}

// ValidateAPIKeyFormat reports whether key looks like a generated token.
// Tokens supplied by an admin may have any form; this only recognises ours.
func ValidateAPIKeyFormat(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != 3 {
		return false
	}
	return slices.Contains(tokenAdjectives, parts[0]) &&
		slices.Contains(tokenNouns, parts[1]) &&
		tokenHexPattern.MatchString(parts[2])
}

// HashAPIKey hashes a token for storage
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
