// Package webauth is an embeddable authentication backend for web and
// mobile apps. It serves local email/password signup and login (optionally
// gated behind emailed verification codes), Google sign-in for browsers and
// mobile clients, anonymous try-before-signup accounts with a one-shot
// merge into real accounts, password reset over email, and JWT sessions
// with rotating refresh tokens stored encrypted at rest.
//
// The module is storage agnostic: flows talk to the AccountStore and
// StateStore interfaces, with MongoDB, GORM and in-memory implementations
// under stores/. Everything mounts as a single http.Handler; a gRPC
// interceptor under grpc/ gates RPC services with the same access tokens.
package webauth
