// Package protocol groups the defmt wire contract.
//
// Ownership boundary:
// - format: format-string templates and parameter typing
// - frame: single-frame decode, render and the test encoder
package protocol
