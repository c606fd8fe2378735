// Package auth issues and verifies the bearer tokens that carry a caller's
// ledger principal.
//
// Tokens are HS256 JWTs whose subject is the principal. Authentication stops
// there: whether a principal may act on a device is decided by the ledger's
// owner-or-grant rules, never by token contents.
package auth
