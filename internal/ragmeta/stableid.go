// Package ragmeta implements the identity, fingerprint and metadata-schema
// rules shared by every loader and the store manager: stable ids, file
// fingerprints, required-key assertions and space-key sanitisation.
package ragmeta

import "github.com/google/uuid"

const namespaceSeed = "https://ragserver/namespace"

var projectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespaceSeed))

// StableID returns the deterministic UUIDv5 for key, inside the fixed
// project namespace. Same key always produces the same id.
func StableID(key string) uuid.UUID {
	return uuid.NewSHA1(projectNamespace, []byte(key))
}
