// Package qr encodes attendance session tokens into signed QR payloads and
// renders them as PNG images.
package qr

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
)

// DefaultImageSize is the PNG edge length in pixels when none is requested.
const DefaultImageSize = 320

var (
	// ErrCodecNotConfigured indicates a codec without signing material.
	ErrCodecNotConfigured = errors.New("qr codec is not configured")
	// ErrPayloadRequired indicates an empty payload string.
	ErrPayloadRequired = apperrors.New(apperrors.CodeInvalidToken, "qr payload is required")
)

// Payload is the content rendered into a session QR code.
type Payload struct {
	SessionID  string
	Token      string
	IssuedAt   time.Time
	ClassLabel string
}

type payloadClaims struct {
	SessionID  string `json:"sid"`
	Token      string `json:"tok"`
	ClassLabel string `json:"cls"`
	jwt.RegisteredClaims
}

// Codec signs and verifies QR payloads with an Ed25519 key.
type Codec struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewCodec builds a codec around key.
func NewCodec(key ed25519.PrivateKey) (*Codec, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("qr signing key must be %d bytes", ed25519.PrivateKeySize)
	}
	public, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrCodecNotConfigured
	}
	return &Codec{private: key, public: public}, nil
}

// ParseSigningKey decodes a base64 Ed25519 seed or full private key.
func ParseSigningKey(value string) (ed25519.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("qr signing key is empty")
	}
	raw, err := base64.RawStdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("decode qr signing key: %w", err)
		}
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("qr signing key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// GenerateKey returns a fresh signing key and its base64 seed.
func GenerateKey(entropy io.Reader) (ed25519.PrivateKey, string, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	_, key, err := ed25519.GenerateKey(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("generate qr signing key: %w", err)
	}
	return key, base64.RawStdEncoding.EncodeToString(key.Seed()), nil
}

// Encode signs p as a compact JWS. IssuedAt is kept at second precision.
func (c *Codec) Encode(p Payload) (string, error) {
	if c == nil || len(c.private) == 0 {
		return "", ErrCodecNotConfigured
	}
	if strings.TrimSpace(p.SessionID) == "" || strings.TrimSpace(p.Token) == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "qr payload requires session id and token")
	}
	claims := payloadClaims{
		SessionID:  p.SessionID,
		Token:      p.Token,
		ClassLabel: p.ClassLabel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(p.IssuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(c.private)
	if err != nil {
		return "", fmt.Errorf("sign qr payload: %w", err)
	}
	return signed, nil
}

// Decode verifies a payload produced by Encode.
func (c *Codec) Decode(value string) (Payload, error) {
	if c == nil || len(c.public) == 0 {
		return Payload{}, ErrCodecNotConfigured
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Payload{}, ErrPayloadRequired
	}

	var parsed payloadClaims
	_, err := jwt.ParseWithClaims(value, &parsed, func(*jwt.Token) (any, error) {
		return c.public, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Payload{}, mapJWTError(err)
	}
	if strings.TrimSpace(parsed.SessionID) == "" || strings.TrimSpace(parsed.Token) == "" {
		return Payload{}, apperrors.New(apperrors.CodeInvalidToken, "qr payload is missing session claims")
	}

	payload := Payload{
		SessionID:  parsed.SessionID,
		Token:      parsed.Token,
		ClassLabel: parsed.ClassLabel,
	}
	if parsed.IssuedAt != nil {
		payload.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return payload, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeInvalidToken, "qr payload signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeInvalidToken, "qr payload alg is invalid")
	}
	return apperrors.New(apperrors.CodeInvalidToken, "qr payload is invalid")
}

// PNG renders content as a QR code image. Non-positive sizes use DefaultImageSize.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrPayloadRequired
	}
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
