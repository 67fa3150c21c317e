// Package firebase implements gateway.IdentityProvider on top of Firebase
// Authentication.
//
// Account management goes through the Admin SDK. Password sign-in, custom
// token exchange and refresh go through the public Identity Toolkit and
// Secure Token REST endpoints, which the Admin SDK does not cover. Access
// tokens are verified locally against the published JWKS.
package firebase
