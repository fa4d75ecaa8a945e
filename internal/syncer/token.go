package syncer

import (
	"os"
	"strings"
)

// TokenSource resolves the current bearer credential. An empty string
// means "signed out": the coordinator operates offline and skips sync
// rather than treating absence as an error.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed credential, mostly for tests and one-shot runs.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// FileToken reads the credential from a file on every call, so sign-in
// and sign-out take effect without restarting the coordinator. A missing
// file reads as signed out.
type FileToken string

func (f FileToken) Token() string {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
