// Package httpapi is the loopback HTTP surface the PWA shell talks to.
//
// Every response that depends on the session carries a Snapshot so the page
// can render the right screen without a second round trip. Failures use the
// body {code, message} with the message localized from Accept-Language.
package httpapi
