// Package jwt issues and verifies the access/refresh token pair.
//
// Tokens are always signed asymmetrically (RS256 by default, EdDSA optionally):
// the private key is needed only to issue and the public key only to verify.
// Symmetric algorithms are rejected at construction and at parse time.
//
// Every token carries a "type" claim. Verification pins the expected type, so a
// refresh token can never be replayed as an access token or the reverse.
// Refresh tokens carry "aid", the id of the access token minted with them.
package jwt
