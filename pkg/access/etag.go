package access

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/basinhq/basin/pkg/apperrors"
)

// ComputeEtag derives an opaque version token from an entity's mutable
// fields. Fields are joined with a separator that cannot occur in their
// string forms, so distinct field tuples never collide by concatenation.
// The token changes whenever any field changes and is stable otherwise.
func ComputeEtag(fields ...interface{}) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%v", field))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return strings.ToUpper(hex.EncodeToString(sum[:16]))
}

// CheckEtag rejects a mutation based on stale state. It must run against
// the row read in the same transaction as the subsequent write.
func CheckEtag(current, supplied string) error {
	if supplied != current {
		return apperrors.NewEtagConflict(current, supplied)
	}
	return nil
}
