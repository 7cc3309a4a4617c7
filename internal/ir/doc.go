// Package ir provides the snapshot types shared by every other package.
//
// This package contains type definitions and serialization helpers only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the on-disk and on-wire shape of history in one place.
//
// Key design constraints:
//   - All JSON tags use snake_case
//   - Patch values are kept as raw JSON so they round-trip byte for byte
//   - Content digests always go through MarshalCanonical (RFC 8785)
package ir
