// Package uid generates opaque identifiers for records and correlation IDs.
package uid

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}
