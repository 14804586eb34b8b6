// Package formsync makes the external form of a conversation match a
// blueprint.
//
// Sync is idempotent: the first call for a conversation creates the form and
// records it, later calls diff the live form against the blueprint and apply
// only what changed. Field kinds the external service cannot represent are
// dropped and reported as warnings instead of failing the sync.
package formsync
