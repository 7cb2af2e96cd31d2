// Package credential extracts session key/token pairs from inbound requests
// and abstracts the per-client session storage slot.
//
// # Channels
//
// [Extractor] checks, in order: a signed claim parameter, HTTP Basic, an
// `Authorization: Bearer` claim token, the session slot, and plain key/token
// parameters. The first channel present wins.
//
// # Slots
//
// [MemorySlot] is map backed. [CookieJar] produces cookie-backed slots whose
// values are signed and optionally encrypted with gorilla/securecookie.
//
// # What this package must NOT do
//
//   - Resolve sessions or touch any store.
//   - Verify claim tokens itself; that is the ClaimDecoder's job.
package credential
