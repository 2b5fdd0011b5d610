// Package common contains shared constants and sentinel errors used across
// GophChat components.
package common

// CredentialCookieName is the HTTP cookie that carries the signed credential
// between the browser and the server.
const CredentialCookieName = "Token"

// ConnectionIDHeaderName lets a client tell which of its live channels
// originated a send, so that channel is skipped during fan-out.
const ConnectionIDHeaderName = "X-Connection-Id"
