package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// EventID hashes an identity tuple into a deterministic event id: SHA-256
// hex over the RFC 8785 canonical JSON of the tuple. Adapters choose the
// tuple — source, type and a stable identifying subset of payload fields,
// never ingestion time, never volatile samples.
func EventID(identity map[string]interface{}) string {
	raw, err := json.Marshal(identity)
	if err != nil {
		// Identity tuples are adapter-built maps of plain values; marshal
		// cannot realistically fail, but a stable fallback beats a panic.
		raw = []byte(fmt.Sprintf("%v", identity))
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		canonical = raw
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// TimeBucket truncates t to a coarse bucket so repeated observations of the
// same condition within one bucket collide to the same event id.
func TimeBucket(t time.Time, width time.Duration) string {
	return t.UTC().Truncate(width).Format(time.RFC3339)
}
