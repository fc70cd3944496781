package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"

	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
	"votevault/pkg/log"
)

// Suite is the elliptic curve suite used for receipt signatures.
var Suite = suites.MustFind("Ed25519")

// G is the standard base point (generator) for the group.
var G = Suite.Point().Base()

// RandomSource returns the randomness used for key, IV and salt generation.
// A non-empty seed yields a reproducible stream for simulations and tests;
// it must never be used for a real election.
func RandomSource(seed string) io.Reader {
	if seed == "" {
		log.Debug("Using system random source")
		return rand.Reader
	}
	log.Debug("Using deterministic randomness seed: %s", seed)
	return &lockedReader{r: Suite.XOF([]byte(seed))}
}

// lockedReader serializes reads from a stream that is not safe for concurrent use.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

func orDefault(random io.Reader) io.Reader {
	if random == nil {
		return rand.Reader
	}
	return random
}

// GenerateToken returns n random bytes, hex-encoded.
func GenerateToken(random io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(orDefault(random), buf); err != nil {
		return "", xerrors.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
