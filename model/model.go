package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// HashRecord returns a hex encoded SHA-256 of the JSON form of v.
// Mirror rows store it so that re-applying an identical record is detectable.
func HashRecord(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// unmarshalable values never compare equal to a stored hash
		data = []byte(uuid.NewString())
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
