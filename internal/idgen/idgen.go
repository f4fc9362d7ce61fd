// Package idgen generates short, URL-safe identifiers for stream clients,
// listeners and server instances, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used for the different kinds of identifiers.
const (
	ClientPrefix   = "sub-"
	ListenerPrefix = "lsn-"
	InstancePrefix = "srv-"
)

// Alphabet is the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 8

// ClientID returns an identifier for a subscriber attached to the hub.
func ClientID() string {
	return mustGenerate(ClientPrefix)
}

// ListenerID returns an identifier for a client-side listener instance.
func ListenerID() string {
	return mustGenerate(ListenerPrefix)
}

// InstanceID returns an identifier for one running server process.
func InstanceID() string {
	return mustGenerate(InstancePrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// mustGenerate falls back to the bare prefix when the random source fails;
// the ids are only used for log correlation.
func mustGenerate(prefix string) string {
	id, err := GenerateWithPrefix(prefix)
	if err != nil {
		return prefix + "unknown"
	}
	return id
}
