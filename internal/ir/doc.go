// Package ir provides the value model shared by every entql layer.
//
// Field values on entity instances, literals inside query predicates and
// parameters handed to the storage driver are all IRValue. The package
// imports nothing internal, so schema, expr, sqlgen and orm can all build
// on it without cycles.
//
// Key design constraints:
//   - NO float types (keeps fingerprints and equality deterministic)
//   - NULL is an explicit IRNull, never a nil interface
//   - datetime values are IRTime, normalized to UTC
//   - canonical JSON (RFC 8785 ordering, NFC strings) is the only encoding
//     used for fingerprints
package ir
