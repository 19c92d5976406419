// Package hash provides helpers for hashing and verifying short secrets such
// as one-time passcodes.
//
// Store only the value returned by Hash, then verify user input by passing the
// stored value and the plaintext to Verify. Every Verify implementation
// compares in constant time.
package hash
