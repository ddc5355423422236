// Package heritage owns the contribution model.
//
// Ownership boundary:
// - contribution kinds and field defaults
// - submission validation
//
// Persistence and transport live in store and api.
package heritage
