package database

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const idSalt = "this_is_salt"

// NewID returns a primary-key string unique across all collections. The kind
// and sign diversify the hash input per call site; the UUID component keeps
// concurrent calls collision-free without any shared generator state.
func NewID(kind string, sign int) string {
	raw := fmt.Sprintf("%s_%d_%s_%s_%d", idSalt, time.Now().UnixMilli(), uuid.NewString(), kind, sign)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
