// Package auth manages dashboard accounts and their access tokens.
//
// Two roles exist. Users claim devices and command the ones they own.
// Admins onboard hardware, command any device and read the audit log.
// Passwords are stored as Argon2id PHC strings and sessions are
// stateless HS256 JWTs carrying the user ID and role.
package auth
