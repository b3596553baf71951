// Package plex reads the library inventory from a Plex media server: sections,
// items with their media parts and streams, and collections. It is the sole
// source of truth for what the library actually contains; every analysis phase
// works from the snapshot this client fills into the store.
package plex
