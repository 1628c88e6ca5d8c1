// Package persistence stores the hub's device registry and the shared
// credentials on disk, sealed with a symmetric storage key.
//
// Files are JSON documents sealed with envelope.SealSymmetric and replaced
// atomically (write to a temporary file, then rename). Key material itself
// lives in the keys package.
package persistence
