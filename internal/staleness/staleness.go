// Package staleness decides when a prompt's generated metadata is out of date.
package staleness

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/pkg/models"
)

// HashSize is the digest length in bytes (128 bits).
const HashSize = 16

const hashKey = "content_hash:"

// Hash returns the hex encoded 128-bit BLAKE2b digest of body.
func Hash(body string) string {
	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		// Only possible for an invalid size or key
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldRegenerate reports whether metadata for body must be regenerated and
// returns the body's hash. When no regeneration is needed the returned hash is
// the one already stored.
func ShouldRegenerate(body string, meta *models.PromptMetadata, force bool) (bool, string) {
	newHash := Hash(body)
	if force {
		return true, newHash
	}
	if meta == nil || meta.ContentHash == "" || meta.ContentHash != newHash {
		return true, newHash
	}
	return false, meta.ContentHash
}

// PersistHash writes hash into the sidecar at path. The first line starting
// with "content_hash:" is replaced and every other line is kept byte for
// byte; without such a line one is appended. Failures are logged and
// reported but callers are not expected to abort on them.
func PersistHash(fs library.FS, path, hash string) error {
	var data []byte
	if fs.Exists(path) {
		var err error
		data, err = fs.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not read sidecar to store content hash")
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	out := replaceHashLine(data, hash)
	if err := fs.WriteFile(path, out); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not store content hash")
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Debug().Str("path", path).Str("hash", hash).Msg("Stored content hash")
	return nil
}

func replaceHashLine(data []byte, hash string) []byte {
	line := []byte(hashKey + " " + hash)

	lines := bytes.SplitAfter(data, []byte("\n"))
	for i, l := range lines {
		if !bytes.HasPrefix(l, []byte(hashKey)) {
			continue
		}
		// Keep the original line ending
		ending := l[len(bytes.TrimRight(l, "\r\n")):]
		lines[i] = append(append([]byte{}, line...), ending...)
		return bytes.Join(lines, nil)
	}

	out := append([]byte{}, data...)
	if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	out = append(out, line...)
	return append(out, '\n')
}
