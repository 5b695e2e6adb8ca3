package gate

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"sort"
	"strings"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "sha1"
	AlgorithmSHA256 Algorithm = "sha256"
)

type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// SignedContent selects which bytes the provider signs.
type SignedContent string

const (
	// SignedRawBody signs the exact request body.
	SignedRawBody SignedContent = "raw_body"
	// SignedURLParams signs the public URL followed by sorted form key/value pairs.
	SignedURLParams SignedContent = "url_params"
)

// SignatureConfig describes how one provider signs its webhook calls.
type SignatureConfig struct {
	Provider      domain.Provider
	Header        string
	Algorithm     Algorithm
	Encoding      Encoding
	Prefix        string
	Secret        string
	SignedContent SignedContent
}

// TwilioSignature returns the signing scheme of Twilio webhooks.
func TwilioSignature(authToken string, content SignedContent) SignatureConfig {
	if content == "" {
		content = SignedRawBody
	}
	return SignatureConfig{
		Provider:      domain.ProviderTwilio,
		Header:        "X-Twilio-Signature",
		Algorithm:     AlgorithmSHA1,
		Encoding:      EncodingBase64,
		Secret:        authToken,
		SignedContent: content,
	}
}

// WhatsAppSignature returns the signing scheme of WhatsApp Cloud API webhooks.
func WhatsAppSignature(appSecret string) SignatureConfig {
	return SignatureConfig{
		Provider:      domain.ProviderWhatsApp,
		Header:        "X-Hub-Signature-256",
		Algorithm:     AlgorithmSHA256,
		Encoding:      EncodingHex,
		Prefix:        "sha256=",
		Secret:        appSecret,
		SignedContent: SignedRawBody,
	}
}

// SignedRequest is what the verifier needs from an inbound call.
type SignedRequest struct {
	Signature string
	Body      []byte
	URL       string
}

// Verifier checks HMAC signatures for one provider.
type Verifier struct {
	cfg SignatureConfig
}

func NewVerifier(cfg SignatureConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Header) == "" {
		return nil, fmt.Errorf("signature header is required")
	}
	switch cfg.Algorithm {
	case AlgorithmSHA1, AlgorithmSHA256:
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", cfg.Algorithm)
	}
	switch cfg.Encoding {
	case EncodingHex, EncodingBase64:
	default:
		return nil, fmt.Errorf("unsupported signature encoding %q", cfg.Encoding)
	}
	if cfg.SignedContent == "" {
		cfg.SignedContent = SignedRawBody
	}

	return &Verifier{cfg: cfg}, nil
}

func (v *Verifier) Config() SignatureConfig {
	return v.cfg
}

// Enabled is false when no secret is configured; callers accept with a warning.
func (v *Verifier) Enabled() bool {
	return v.cfg.Secret != ""
}

// Verify returns nil when the signature matches, or an *domain.AuthError.
func (v *Verifier) Verify(req SignedRequest) error {
	supplied := strings.TrimSpace(req.Signature)
	if supplied == "" {
		return &domain.AuthError{Provider: v.cfg.Provider, Reason: "missing signature"}
	}
	if v.cfg.Prefix != "" {
		if !strings.HasPrefix(supplied, v.cfg.Prefix) {
			return &domain.AuthError{Provider: v.cfg.Provider, Reason: "malformed signature"}
		}
		supplied = strings.TrimPrefix(supplied, v.cfg.Prefix)
	}

	content, err := v.signedBytes(req)
	if err != nil {
		return &domain.AuthError{Provider: v.cfg.Provider, Reason: "unsigned content"}
	}

	// Compare the canonical encoding so case or padding variants never pass.
	want := v.encode(v.mac(content))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(want)) != 1 {
		return &domain.AuthError{Provider: v.cfg.Provider, Reason: "signature mismatch"}
	}
	return nil
}

// Sign renders the header value a provider would send for req.
func (v *Verifier) Sign(req SignedRequest) (string, error) {
	content, err := v.signedBytes(req)
	if err != nil {
		return "", err
	}
	return v.cfg.Prefix + v.encode(v.mac(content)), nil
}

func (v *Verifier) mac(content []byte) []byte {
	var fn func() hash.Hash = sha256.New
	if v.cfg.Algorithm == AlgorithmSHA1 {
		fn = sha1.New
	}
	h := hmac.New(fn, []byte(v.cfg.Secret))
	h.Write(content)
	return h.Sum(nil)
}

func (v *Verifier) signedBytes(req SignedRequest) ([]byte, error) {
	if v.cfg.SignedContent != SignedURLParams {
		return req.Body, nil
	}

	params, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.URL)
	for _, key := range keys {
		for _, value := range params[key] {
			b.WriteString(key)
			b.WriteString(value)
		}
	}
	return []byte(b.String()), nil
}

func (v *Verifier) encode(sum []byte) string {
	if v.cfg.Encoding == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}
