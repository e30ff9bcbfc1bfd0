// Package security derives the brute-force posture of an OTP configuration:
// code space, guess probability over a code lifetime, and issuance ceilings.
package security
