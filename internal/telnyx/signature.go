package telnyx

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fieldlinehq/fieldline/pkg/logging"
)

// Header names Telnyx attaches to signed webhook deliveries.
const (
	SignatureHeader = "Telnyx-Signature-Ed25519"
	TimestampHeader = "Telnyx-Timestamp"
)

const defaultTolerance = 30 * time.Second

var (
	ErrMissingSignature = errors.New("telnyx: missing signature headers")
	ErrSignatureInvalid = errors.New("telnyx: signature verification failed")
	ErrTimestampSkew    = errors.New("telnyx: signature timestamp outside tolerance")
)

// Verifier validates Ed25519 webhook signatures against the account's public
// key. The signed message is timestamp + "." + raw body, byte for byte; the
// payload must never be re-serialized before verification.
type Verifier struct {
	publicKey ed25519.PublicKey
	tolerance time.Duration
	require   bool
	logger    *logging.Logger
	now       func() time.Time
}

type VerifierConfig struct {
	PublicKey string // base64-encoded Ed25519 public key
	Tolerance time.Duration
	Require   bool
	Logger    *logging.Logger
	Now       func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	v := &Verifier{
		tolerance: cfg.Tolerance,
		require:   cfg.Require,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	key := strings.TrimSpace(cfg.PublicKey)
	if key == "" {
		if cfg.Require {
			return nil, errors.New("telnyx: public key required when signature enforcement is on")
		}
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("telnyx: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("telnyx: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	v.publicKey = ed25519.PublicKey(raw)
	return v, nil
}

// Verify checks the signature and timestamp headers against the raw body.
// When enforcement is off and the headers are absent entirely, the request is
// allowed through with a warning so unsigned test traffic keeps working.
func (v *Verifier) Verify(timestamp, signature string, payload []byte) error {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" && signature == "" {
		if !v.require {
			v.logger.Warn("webhook accepted without signature headers; enforcement is disabled")
			return nil
		}
		return ErrMissingSignature
	}
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}
	if v.publicKey == nil {
		return errors.New("telnyx: public key not configured")
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("telnyx: invalid signature timestamp: %w", err)
	}
	if diff := v.now().Sub(time.Unix(sec, 0)); diff > v.tolerance || diff < -v.tolerance {
		return fmt.Errorf("%w: skew %s", ErrTimestampSkew, diff)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", ErrSignatureInvalid)
	}
	signed := make([]byte, 0, len(timestamp)+1+len(payload))
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, payload...)
	if !ed25519.Verify(v.publicKey, signed, sig) {
		return ErrSignatureInvalid
	}
	return nil
}
