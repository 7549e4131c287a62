// Package guard hosts the local session guard: a PIN and platform
// authenticator gate in front of one cached contact profile on one device.
//
// The lock/unlock decision lives in session; storage, pin, lockout, and
// biometric are its leaves. httpapi and app expose it to the PWA shell over
// loopback HTTP.
package guard
