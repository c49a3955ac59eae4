package utils

import "github.com/google/uuid"

// GenID returns a fresh 128-bit random identifier for a post. Collision
// probability is negligible, so ids can also be generated client-side.
func GenID() string {
	return uuid.NewString()
}

// GenChannelID returns a new channel identifier.
func GenChannelID() string {
	return "ch_" + uuid.NewString()
}

// GenBlobRef returns a unique suffix used to build blob references.
func GenBlobRef() string {
	return uuid.NewString()
}
