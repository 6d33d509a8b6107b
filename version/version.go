// Package version holds the relay's build version string.
package version

// V is the relay's version, reported in the NIP-11 document and on
// startup. Overridden at build time via -ldflags "-X orly.dev/version.V=...".
var V = "v0.1.0"
