package cache

import (
	"net/http"
	"testing"
)

func TestKey_OrderIndependence(t *testing.T) {
	a := Key{
		URL:    "https://api.example.com/graphql",
		Method: "POST",
		Body:   []byte(`{"query":"{shop{name}}","variables":{"a":1,"b":2}}`),
	}
	b := Key{
		URL:    "https://api.example.com/graphql",
		Method: "POST",
		Body:   []byte(`{"variables":{"b":2,"a":1},"query":"{shop{name}}"}`),
	}

	if a.String() != b.String() {
		t.Errorf("keys differ for reordered JSON fields:\n  %s\n  %s", a.String(), b.String())
	}
}

func TestKey_NestedOrderIndependence(t *testing.T) {
	a := Key{
		URL:  "https://api.example.com/graphql",
		Body: []byte(`{"variables":{"filter":{"min":1,"max":9},"id":"x"}}`),
	}
	b := Key{
		URL:  "https://api.example.com/graphql",
		Body: []byte(`{"variables":{"id":"x","filter":{"max":9,"min":1}}}`),
	}

	if a.String() != b.String() {
		t.Error("keys differ for reordered nested JSON fields")
	}
}

func TestKey_DifferentBodiesDiffer(t *testing.T) {
	base := Key{URL: "https://api.example.com/graphql", Method: "POST"}

	a := base
	a.Body = []byte(`{"variables":{"id":1}}`)
	b := base
	b.Body = []byte(`{"variables":{"id":2}}`)

	if a.String() == b.String() {
		t.Error("keys identical for different bodies")
	}
}

func TestKey_MethodAndURLParticipate(t *testing.T) {
	a := Key{URL: "https://api.example.com/graphql", Method: "POST"}
	b := Key{URL: "https://api.example.com/graphql", Method: "GET"}
	if a.String() == b.String() {
		t.Error("keys identical for different methods")
	}

	c := Key{URL: "https://api.example.com/other", Method: "POST"}
	if a.String() == c.String() {
		t.Error("keys identical for different URLs")
	}
}

func TestKey_DefaultMethodIsGet(t *testing.T) {
	a := Key{URL: "https://api.example.com/x"}
	b := Key{URL: "https://api.example.com/x", Method: "get"}
	if a.String() != b.String() {
		t.Error("empty method and lowercase get should normalize identically")
	}
}

func TestKey_TrackedHeaders(t *testing.T) {
	withHeader := func(name, value string) Key {
		h := http.Header{}
		h.Set(name, value)
		return Key{
			URL:            "https://api.example.com/graphql",
			Header:         h,
			TrackedHeaders: []string{"X-Buyer-IP"},
		}
	}

	a := withHeader("X-Buyer-IP", "10.0.0.1")
	b := withHeader("X-Buyer-IP", "10.0.0.2")
	if a.String() == b.String() {
		t.Error("keys identical for different tracked header values")
	}

	// Untracked headers must not affect identity.
	c := withHeader("X-Buyer-IP", "10.0.0.1")
	c.Header.Set("X-Request-ID", "abc")
	if a.String() != c.String() {
		t.Error("untracked header changed the key")
	}
}

func TestKey_TrackedHeaderOrderIrrelevant(t *testing.T) {
	h := http.Header{}
	h.Set("X-Buyer-IP", "10.0.0.1")
	h.Set("Accept-Language", "en")

	a := Key{URL: "u", Header: h, TrackedHeaders: []string{"X-Buyer-IP", "Accept-Language"}}
	b := Key{URL: "u", Header: h, TrackedHeaders: []string{"Accept-Language", "X-Buyer-IP"}}
	if a.String() != b.String() {
		t.Error("tracked header name order changed the key")
	}
}

func TestKey_NonJSONBody(t *testing.T) {
	a := Key{URL: "u", Body: []byte("not json at all")}
	b := Key{URL: "u", Body: []byte("not json at all")}
	if a.String() != b.String() {
		t.Error("identical opaque bodies produced different keys")
	}

	c := Key{URL: "u", Body: []byte("not json at ALL")}
	if a.String() == c.String() {
		t.Error("different opaque bodies produced identical keys")
	}
}

func TestKey_Determinism(t *testing.T) {
	k := Key{
		URL:    "https://api.example.com/graphql",
		Method: "POST",
		Body:   []byte(`{"query":"{shop{name}}","variables":{"first":10,"country":"DE"}}`),
	}

	first := k.String()
	for i := 0; i < 50; i++ {
		if got := k.String(); got != first {
			t.Fatalf("key not deterministic: %s != %s", got, first)
		}
	}
}

func TestCanonicalizeBody_WhitespaceInsensitive(t *testing.T) {
	a := canonicalizeBody([]byte(`{ "a": 1,  "b": [1, 2] }`))
	b := canonicalizeBody([]byte(`{"b":[1,2],"a":1}`))
	if string(a) != string(b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
}

func TestCanonicalizeBody_PreservesNumberPrecision(t *testing.T) {
	got := canonicalizeBody([]byte(`{"price":19.990000000000001}`))
	if string(got) != `{"price":19.990000000000001}` {
		t.Errorf("number mangled during canonicalization: %s", got)
	}
}
