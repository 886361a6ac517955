package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	// SignaturePrefix precedes the hex digest in a signature header
	SignaturePrefix = "sha256="

	HeaderSignature       = "signature"
	HeaderGitHubSignature = "x-hub-signature-256"
	HeaderGitHubEvent     = "x-github-event"
	HeaderGitHubDelivery  = "x-github-delivery"
)

var (
	ErrMissingPrefix     = errors.New("signature is missing the sha256= prefix")
	ErrInvalidHex        = errors.New("signature is not valid hex")
	ErrSignatureMismatch = errors.New("signature does not match body")
	ErrMalformedHeader   = errors.New("header value is not valid UTF-8")
)

// Headers flattens request headers into a map keyed by lower-case name,
// keeping the first value of each. Any value that is not valid UTF-8 fails
// the whole request.
func Headers(h http.Header) (map[string]string, error) {
	out := make(map[string]string, len(h))
	for name, values := range h {
		for _, v := range values {
			if !utf8.ValidString(v) {
				return nil, fmt.Errorf("%s: %w", name, ErrMalformedHeader)
			}
		}
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out, nil
}

// Verify authenticates body against the signature header, looked up as
// "signature" and then "x-hub-signature-256". A request carrying neither is
// allowed: signatures are optional.
func Verify(secret []byte, headers map[string]string, body []byte) error {
	value, ok := headers[HeaderSignature]
	if !ok {
		value, ok = headers[HeaderGitHubSignature]
	}
	if !ok {
		return nil
	}

	digest, found := strings.CutPrefix(value, SignaturePrefix)
	if !found {
		return ErrMissingPrefix
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	if !hmac.Equal(got, digest256(secret, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature header value for body
func Sign(secret, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(digest256(secret, body))
}

func digest256(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// Payload is the part of a push event drovah reads
type Payload struct {
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

var ErrMissingRepository = errors.New("payload has no repository name")

// ParsePayload decodes a webhook body
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if p.Repository.Name == "" {
		return nil, ErrMissingRepository
	}
	return &p, nil
}

// NewPayload builds a minimal push payload for project
func NewPayload(project string) ([]byte, error) {
	var p Payload
	p.Repository.Name = project
	return json.Marshal(p)
}
