// Package timeouts defines shared timeout constants used across the guard.
// Centralizing these values prevents drift between the HTTP surface and the
// biometric bridge.
package timeouts

import "time"

// BiometricCeremony caps how long a platform authenticator prompt may stay
// open before it resolves as a failure.
const BiometricCeremony = time.Minute

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// BestEffortTask caps fire-and-forget work such as biometric enrollment
// after onboarding. It leaves room for a full ceremony.
const BestEffortTask = BiometricCeremony + 15*time.Second
