package util

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

// GetIDFromParts joins parts with ':' and hashes the result.
func GetIDFromParts(parts ...string) string {
	str := strings.Join(parts, ":")

	return GetIDFromString(&str)
}
