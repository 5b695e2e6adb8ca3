package gate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

func mustVerifier(t *testing.T, cfg SignatureConfig) *Verifier {
	t.Helper()

	v, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func TestWhatsAppVerifyAcceptsProviderSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	v := mustVerifier(t, WhatsAppSignature("app-secret"))
	if err := v.Verify(SignedRequest{Signature: header, Body: body}); err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
}

func TestVerifyRejectsEverySingleByteMutation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SignatureConfig
	}{
		{name: "whatsapp hex", cfg: WhatsAppSignature("app-secret")},
		{name: "twilio base64", cfg: TwilioSignature("auth-token", SignedRawBody)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := mustVerifier(t, tt.cfg)
			body := []byte(`{"id":"wamid.1","status":"delivered"}`)
			header, err := v.Sign(SignedRequest{Body: body})
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			if err := v.Verify(SignedRequest{Signature: header, Body: body}); err != nil {
				t.Fatalf("Verify(signed) error = %v", err)
			}

			for i := range body {
				mutated := append([]byte(nil), body...)
				mutated[i] ^= 0x01
				if err := v.Verify(SignedRequest{Signature: header, Body: mutated}); err == nil {
					t.Fatalf("Verify() accepted body mutated at byte %d", i)
				}
			}

			for i := len(tt.cfg.Prefix); i < len(header); i++ {
				mutated := []byte(header)
				mutated[i] ^= 0x01
				if err := v.Verify(SignedRequest{Signature: string(mutated), Body: body}); err == nil {
					t.Fatalf("Verify() accepted signature mutated at byte %d", i)
				}
			}
		})
	}
}

func TestVerifyErrorReasons(t *testing.T) {
	t.Parallel()

	v := mustVerifier(t, WhatsAppSignature("app-secret"))
	body := []byte(`{}`)

	tests := []struct {
		name       string
		signature  string
		wantReason string
	}{
		{name: "missing", signature: "", wantReason: "missing signature"},
		{name: "no prefix", signature: "deadbeef", wantReason: "malformed signature"},
		{name: "wrong digest", signature: "sha256=deadbeef", wantReason: "signature mismatch"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Verify(SignedRequest{Signature: tt.signature, Body: body})
			var authErr *domain.AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Verify() error = %v, want *domain.AuthError", err)
			}
			if authErr.Reason != tt.wantReason {
				t.Fatalf("Reason = %q, want %q", authErr.Reason, tt.wantReason)
			}
			if authErr.Provider != domain.ProviderWhatsApp {
				t.Fatalf("Provider = %q, want %q", authErr.Provider, domain.ProviderWhatsApp)
			}
		})
	}
}

func TestVerifyRejectsUppercaseHex(t *testing.T) {
	t.Parallel()

	v := mustVerifier(t, WhatsAppSignature("app-secret"))
	body := []byte(`{"a":1}`)
	header, err := v.Sign(SignedRequest{Body: body})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	upper := "sha256="
	for _, r := range header[len("sha256="):] {
		if r >= 'a' && r <= 'f' {
			r -= 'a' - 'A'
		}
		upper += string(r)
	}
	if upper == header {
		t.Skip("digest has no hex letters")
	}

	if err := v.Verify(SignedRequest{Signature: upper, Body: body}); err == nil {
		t.Fatal("Verify() accepted non-canonical hex encoding")
	}
}

func TestTwilioURLParamsSigning(t *testing.T) {
	t.Parallel()

	v := mustVerifier(t, TwilioSignature("auth-token", SignedURLParams))
	url := "https://crm.example.com/v1/webhooks/twilio"
	body := []byte("To=%2B15550001111&From=%2B905321234567&Body=hello&MessageSid=SM1")

	header, err := v.Sign(SignedRequest{Body: body, URL: url})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// Parameter order in the body must not matter.
	reordered := []byte("MessageSid=SM1&Body=hello&From=%2B905321234567&To=%2B15550001111")
	if err := v.Verify(SignedRequest{Signature: header, Body: reordered, URL: url}); err != nil {
		t.Fatalf("Verify(reordered) error = %v", err)
	}

	if err := v.Verify(SignedRequest{Signature: header, Body: body, URL: url + "?x=1"}); err == nil {
		t.Fatal("Verify() accepted signature for a different URL")
	}

	if err := v.Verify(SignedRequest{Signature: header, Body: []byte("%zz"), URL: url}); err == nil {
		t.Fatal("Verify() accepted an unparsable form body")
	}
}

func TestTwilioSignatureDefaultsToRawBody(t *testing.T) {
	t.Parallel()

	cfg := TwilioSignature("token", "")
	if cfg.SignedContent != SignedRawBody {
		t.Fatalf("SignedContent = %q, want %q", cfg.SignedContent, SignedRawBody)
	}
	if cfg.Header != "X-Twilio-Signature" {
		t.Fatalf("Header = %q, want X-Twilio-Signature", cfg.Header)
	}
}

func TestVerifierEnabled(t *testing.T) {
	t.Parallel()

	if mustVerifier(t, WhatsAppSignature("")).Enabled() {
		t.Fatal("Enabled() = true with empty secret, want false")
	}
	if !mustVerifier(t, WhatsAppSignature("s")).Enabled() {
		t.Fatal("Enabled() = false with secret, want true")
	}
}

func TestNewVerifierValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SignatureConfig
	}{
		{name: "missing header", cfg: SignatureConfig{Algorithm: AlgorithmSHA256, Encoding: EncodingHex}},
		{name: "bad algorithm", cfg: SignatureConfig{Header: "X-Sig", Algorithm: "md5", Encoding: EncodingHex}},
		{name: "bad encoding", cfg: SignatureConfig{Header: "X-Sig", Algorithm: AlgorithmSHA1, Encoding: "base32"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewVerifier(tt.cfg); err == nil {
				t.Fatal("NewVerifier() error = nil, want error")
			}
		})
	}
}
