// Package password implements password hashing and verification with Argon2id
// defaults and bcrypt compatibility for imported hashes.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] verifies stored bcrypt hashes too and reports them through
// NeedsUpgrade so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goIdentity package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
