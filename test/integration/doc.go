// Package integration contains integration tests for the SSO service.
//
// These tests use testcontainers to start a real Redis and exercise the store,
// the authorization code store, the rate limiter and the complete
// authorization code flow against it, driven by a golang.org/x/oauth2 client.
// They are skipped with -short.
package integration
