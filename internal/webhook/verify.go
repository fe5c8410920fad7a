package webhook

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/ccrelay/ccrelay/internal/errors"
)

const (
	// MaxAge rejects payloads older than this as replays.
	MaxAge = 5 * time.Minute
	// MaxSkew tolerates provider clocks running ahead of ours.
	MaxSkew = 60 * time.Second
)

// Verify checks a provider callback signature over the exact byte
// concatenation timestamp + "|" + rawBody.
//
// Missing or malformed caller inputs (empty signature header, empty or
// unparseable timestamp, undecodable public key) return an error: the request
// must be rejected as a protocol violation. A stale or future-dated timestamp
// and a signature that simply fails to verify return (false, nil); those are
// attacker-controlled conditions, not defects.
func Verify(rawBody []byte, signatureB64, timestamp, publicKeyB64 string) (bool, error) {
	return verifyAt(rawBody, signatureB64, timestamp, publicKeyB64, time.Now())
}

func verifyAt(rawBody []byte, signatureB64, timestamp, publicKeyB64 string, now time.Time) (bool, error) {
	if signatureB64 == "" {
		return false, errors.InvalidInput("missing signature header")
	}
	if timestamp == "" {
		return false, errors.InvalidInput("missing timestamp header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, errors.InvalidInput("malformed timestamp: " + err.Error())
	}

	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > MaxAge {
		return false, nil
	}
	if signedAt.Sub(now) > MaxSkew {
		return false, nil
	}

	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, errors.InvalidInput("malformed public key: " + err.Error())
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, errors.InvalidInput("public key has wrong size")
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, nil
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}

	payload := make([]byte, 0, len(timestamp)+1+len(rawBody))
	payload = append(payload, timestamp...)
	payload = append(payload, '|')
	payload = append(payload, rawBody...)

	return ed25519.Verify(ed25519.PublicKey(publicKey), payload, signature), nil
}
