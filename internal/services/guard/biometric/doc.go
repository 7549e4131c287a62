// Package biometric lets a platform authenticator unlock the guard.
//
// Bridge is the WebAuthn relying party: it starts registration and login
// ceremonies, hands them to a Platform, and verifies what comes back. Relay is
// the Platform used by the daemon; it parks each ceremony until the PWA runs
// navigator.credentials and posts the result.
package biometric
