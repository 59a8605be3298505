// Package ids generates identifiers for rows whose identity isn't supplied
// by an external system (campaigns, contacts, transcripts, recordings).
// Calls use the provider's own call id instead — see models.Call.
package ids

import "github.com/google/uuid"

func New() string { return uuid.New().String() }

func NewPrefixed(prefix string) string { return prefix + "_" + uuid.New().String() }
