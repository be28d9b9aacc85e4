package livephoto

import "github.com/google/uuid"

// AllocateAssetID returns id unchanged if non-empty, otherwise a
// freshly generated unique token.
func AllocateAssetID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
