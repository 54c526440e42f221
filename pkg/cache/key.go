package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Key identifies a request for caching purposes: method, URL, body and a
// whitelisted subset of headers. Two semantically identical requests must
// produce the same key string regardless of field insertion order in the
// body, so JSON bodies are canonicalized before hashing.
type Key struct {
	// URL is the full upstream URL.
	URL string

	// Method is the HTTP method (defaults to GET when empty).
	Method string

	// Body is the raw request body.
	Body []byte

	// Header holds the request headers the key may draw from.
	Header http.Header

	// TrackedHeaders lists the header names that participate in the key.
	// Headers not listed here never affect identity.
	TrackedHeaders []string
}

// String generates a deterministic cache key string.
// Format: sfc:METHOD:hex(sha256(method|url|canonicalBody|headers))
func (k Key) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(k.URL))
	h.Write([]byte{'|'})
	h.Write(canonicalizeBody(k.Body))
	h.Write([]byte{'|'})
	h.Write([]byte(k.trackedHeaderValues()))

	return fmt.Sprintf("sfc:%s:%s", method, hex.EncodeToString(h.Sum(nil)))
}

// trackedHeaderValues renders the tracked header subset as "name:value"
// pairs, sorted by name for determinism.
func (k Key) trackedHeaderValues() string {
	if len(k.TrackedHeaders) == 0 || k.Header == nil {
		return ""
	}

	names := make([]string, 0, len(k.TrackedHeaders))
	for _, name := range k.TrackedHeaders {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if v := k.Header.Get(name); v != "" {
			parts = append(parts, name+":"+v)
		}
	}
	return strings.Join(parts, "|")
}

// canonicalizeBody re-serializes a JSON body with lexicographically sorted
// object keys at every nesting level, so that key insertion order (e.g. in a
// GraphQL variables object) never affects the digest. Bodies that do not
// parse as JSON are used verbatim.
func canonicalizeBody(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return body
	}
	if dec.More() {
		// Trailing garbage after a valid JSON prefix; treat as opaque.
		return body
	}

	// encoding/json sorts map keys on marshal, at every nesting level.
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return body
	}
	return canonical
}
