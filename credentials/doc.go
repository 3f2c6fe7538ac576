// Package credentials verifies usernames and passwords for goSession.Engine.Login.
//
// Passwords are hashed with argon2id and stored as PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<lanes>$<salt>$<hash>
//
// [MemoryVerifier] keeps users in process memory. [PostgresVerifier] reads a
// users table through pgx. Both implement goSession.CredentialVerifier and
// return errors wrapping goSession.ErrInvalidCredentials for wrong or unknown
// credentials.
//
// This package never logs or stores plaintext passwords, and it never touches
// session state.
package credentials
