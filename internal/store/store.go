// Package store provides the durable key-value persistence used for
// session identities and deep-link relay state.
package store

// Store is the persistence capability the identity and relay layers
// depend on. Implementations must tolerate corrupt or unreadable entries
// by treating them as absent: Get clears a bad entry and reports it as
// missing instead of propagating a decode failure.
type Store interface {
	// Get returns the value for key, or (nil, nil) when absent.
	Get(key string) ([]byte, error)
	// Set stores the value for key, replacing any previous value.
	Set(key string, value []byte) error
	// Remove deletes the entry for key. Removing a missing key is not
	// an error.
	Remove(key string) error
}

// Well-known keys.
const (
	KeyIdentity   = "my_delegation"
	KeyRelayState = "phantom_deeplink"
)
