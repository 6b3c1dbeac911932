package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types with appropriate JSON tags.
//
// A user is created unverified at registration and stays that way
// until a verification token is consumed. Login never issues a
// session while EmailVerified is false.
//
// Fields:
//  ID            – primary key identifier of the user.
//  Email         – unique, lower-cased email address.
//  PasswordHash  – bcrypt hashed password.
//  EmailVerified – whether the email address has been confirmed.
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type User struct {
    ID            uint64    // users.id
    Email         string    // users.email
    PasswordHash  string    // users.password_hash
    EmailVerified bool      // users.email_verified
    CreatedAt     time.Time // users.created_at
    UpdatedAt     time.Time // users.updated_at
}
