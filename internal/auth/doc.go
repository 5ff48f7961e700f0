// Package auth protects the smsrelay REST API.
//
// Operators authenticate with HS256 JWTs signed with auth.jwt_secret. The
// subject claim names the operator and is attached to the request context
// so handlers can log who sent a broadcast.
//
//	v, err := auth.NewJWTVerifier(secret)
//	token, err := v.Generate("alice", 30*24*time.Hour)
//	mux.Handle("/api/", auth.Middleware(v, logger)(api))
//
// Tokens are minted with `smsrelay-admin token <operator>`.
package auth
