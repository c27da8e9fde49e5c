package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltLength    = 16
	recordSize    = 4096
	authKeyLength = 16
	// maxPlaintext leaves room for the delimiter and GCM tag within one
	// record; web push services reject multi-record bodies.
	maxPlaintext = recordSize - 103
)

// encrypt seals plaintext per RFC 8291 (aes128gcm content coding). The
// returned body carries the salt, record size and ephemeral public key in
// its binary header, so no extra Crypto-Key header is needed.
func encrypt(plaintext []byte, p256dh, auth string) ([]byte, error) {
	if len(plaintext) > maxPlaintext {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxPlaintext)
	}

	subscriberPub, err := decodeSubscriberKey(p256dh)
	if err != nil {
		return nil, err
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(auth)
	if err != nil {
		return nil, fmt.Errorf("decode auth secret: %w", err)
	}
	if len(authSecret) != authKeyLength {
		return nil, fmt.Errorf("auth secret must be %d bytes", authKeyLength)
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	sharedSecret, err := ephemeral.ECDH(subscriberPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh agreement: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	// IKM = HKDF(auth, ecdh_secret, "WebPush: info" || 0x00 || ua_pub || as_pub)
	keyInfo := append([]byte("WebPush: info\x00"), subscriberPub.Bytes()...)
	keyInfo = append(keyInfo, ephemeral.PublicKey().Bytes()...)
	ikm := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, authSecret, keyInfo), ikm); err != nil {
		return nil, fmt.Errorf("derive ikm: %w", err)
	}

	cek := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: aes128gcm\x00")), cek); err != nil {
		return nil, fmt.Errorf("derive cek: %w", err)
	}
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: nonce\x00")), nonce); err != nil {
		return nil, fmt.Errorf("derive nonce: %w", err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// 0x02 marks the final (and only) record.
	padded := append(append([]byte{}, plaintext...), 0x02)
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	asPub := ephemeral.PublicKey().Bytes()
	body := make([]byte, 0, saltLength+5+len(asPub)+len(ciphertext))
	body = append(body, salt...)
	body = binary.BigEndian.AppendUint32(body, recordSize)
	body = append(body, byte(len(asPub)))
	body = append(body, asPub...)
	body = append(body, ciphertext...)
	return body, nil
}

// decodeSubscriberKey parses the base64url p256dh value as an uncompressed
// P-256 point. Some browsers emit padded standard base64, so both
// alphabets are accepted.
func decodeSubscriberKey(p256dh string) (*ecdh.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(p256dh)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(p256dh)
		if err != nil {
			return nil, fmt.Errorf("decode p256dh key: %w", err)
		}
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse p256dh key: %w", err)
	}
	return pub, nil
}
