// Package keygen produces API keys, public file keys and blob filenames.
package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	apiKeyBytes  = 16
	fileKeyBytes = 6

	// DefaultExt is used when an upload carries no extension.
	DefaultExt = ".png"
)

// Generator draws randomness from Rand so tests can force collisions.
type Generator struct {
	Rand    io.Reader
	NewUUID func() uuid.UUID
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{
		Rand:    rand.Reader,
		NewUUID: uuid.New,
	}
}

// APIKey returns "<name>_<32 hex chars>".
func (g *Generator) APIKey(name string) (string, error) {
	b, err := g.read(apiKeyBytes)
	if err != nil {
		return "", err
	}
	return name + "_" + hex.EncodeToString(b), nil
}

// FileKey returns 6 random bytes as unpadded base64url (8 chars).
func (g *Generator) FileKey() (string, error) {
	b, err := g.read(fileKeyBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Filename returns a fresh uuid with ext appended, defaulting to .png.
func (g *Generator) Filename(ext string) string {
	if ext == "" {
		ext = DefaultExt
	}
	return g.NewUUID().String() + ext
}

func (g *Generator) read(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(g.Rand, b)
	if err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
