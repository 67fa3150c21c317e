// Package gateway is an authentication gateway that fronts an external
// Identity Provider. Account storage, password hashing and session tokens
// belong to the provider; the gateway adds input validation, single use
// action tokens for email verification and password reset, and a uniform
// error taxonomy for HTTP clients.
//
// Action tokens:
//   - ActionTokenService signs HS256 tokens carrying a per record key. Only
//     the latest key for an (email, action) pair is stored, so issuing a new
//     token invalidates the previous one and a verified token is consumed.
//   - ActionKeySweeper removes records whose expiry has passed.
//
// Activity sinks:
//   - ActivitySink receives registration, verification and password reset
//     events. Sinks run best effort; a failing sink is logged and ignored.
//
// HTTP:
//   - RegisterAuthRoutes mounts an HTTPController on a go-router Router,
//     served by fiber. The refresh token travels in an HTTP only cookie
//     scoped to the refresh route.
package gateway
