package webpush

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"time"
)

// vapidSigner mints RFC 8292 authorization headers. Tokens are signed per
// push-service origin and cached until close to expiry.
type vapidSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  string
	subject    string
}

// newVAPIDSigner parses the base64url-encoded P-256 key pair. Subject is a
// mailto: or https: contact URI the push service may use to reach the
// operator.
func newVAPIDSigner(privateKey, publicKey, subject string) (*vapidSigner, error) {
	raw, err := base64.RawURLEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decode vapid private key: %w", err)
	}
	ecdhKey, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse vapid private key: %w", err)
	}

	// The signing path needs the ecdsa form of the same key.
	d := new(big.Int).SetBytes(raw)
	x, y := elliptic.P256().ScalarBaseMult(raw)
	signing := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}

	pub := publicKey
	if pub == "" {
		pub = base64.RawURLEncoding.EncodeToString(ecdhKey.PublicKey().Bytes())
	}
	return &vapidSigner{privateKey: signing, publicKey: pub, subject: subject}, nil
}

// header returns the Authorization value for a push endpoint. The JWT
// audience is the endpoint origin, not the full subscription URL.
func (s *vapidSigner) header(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	claims := map[string]any{
		"aud": u.Scheme + "://" + u.Host,
		"exp": time.Now().Add(12 * time.Hour).Unix(),
		"sub": s.subject,
	}
	token, err := s.signJWT(claims)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vapid t=%s, k=%s", token, s.publicKey), nil
}

// signJWT produces a compact ES256 JWT with the raw r||s signature
// encoding JOSE requires.
func (s *vapidSigner) signJWT(claims map[string]any) (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingInput := header + "." + base64.RawURLEncoding.EncodeToString(payload)

	digest := sha256.Sum256([]byte(signingInput))
	r, sv, err := ecdsa.Sign(rand.Reader, s.privateKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign vapid token: %w", err)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	sv.FillBytes(sig[32:])
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
