// Package server composes and runs the guard process boundary.
//
// It hosts the loopback HTTP API the PWA shell talks to. The session machine,
// the biometric relay, and the directive queue share one key-space store so
// every lock decision is made from the same persisted record.
package server
