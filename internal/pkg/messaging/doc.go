// Package messaging publishes and consumes broker messages behind one small
// interface, so the passcode engine and the delivery worker do not depend on
// the broker in use. NATS, Kafka and an in-process broker are provided.
package messaging
