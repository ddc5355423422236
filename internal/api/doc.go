// Package api exposes contributions over HTTP.
//
// Ownership boundary:
// - route registration and middleware
// - request decoding and error-to-status mapping
//
// Storage and media writes are delegated to store and media.
package api
