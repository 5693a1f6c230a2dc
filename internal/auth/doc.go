// Package auth provides token verification for the gateway.
//
// # Overview
//
// Clients connect anonymously and are lazily upgraded to authenticated when
// they first need a privileged operation: subscribing to a protected
// category or dispatching an agent/workflow command. The upgrade is gated by
// a bearer token carried in the triggering message.
//
// # Components
//
//   - TokenVerifier: the verification boundary. JWTVerifier is the HS256
//     implementation; tests substitute their own.
//   - Gate: applies a verified token to a connection's Principal state.
//     Idempotent — re-authenticating an authenticated client is a no-op and
//     never changes the recorded user.
//
// # Token Format
//
// HS256 JWTs with standard claims:
//
//	sub: user ID (required)
//	exp: expiration (enforced)
//	iat: issued at
package auth
