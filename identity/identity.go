// Package identity loads, generates and stores the static node identity:
// a Curve25519 key pair plus the proof-of-work stamp that makes the public
// key acceptable to peers.
//
// Identity files are JSON objects with hex encoded fields:
//
//	{
//	  "peer_id": "idsfYM6UbG2nhNS1dqhsJEchaDhmd9",
//	  "public_key": "17f7d118...",
//	  "secret_key": "0271fac8...",
//	  "proof_of_work_stamp": "b6a4a80d..."
//	}
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"

	"github.com/opd-ai/tezhandshake/crypto"
)

var (
	// ErrInvalidIdentity indicates an identity file that cannot be used.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrKeyMismatch indicates a public key that is not derived from the secret key.
	ErrKeyMismatch = errors.New("public key does not match secret key")

	// ErrPeerIDMismatch indicates a peer_id field that does not match the public key.
	ErrPeerIDMismatch = errors.New("peer id does not match public key")
)

// Identity is read-only once loaded and may be shared by concurrent
// handshake attempts.
type Identity struct {
	PeerID      string
	PublicKey   crypto.PublicKey
	SecretKey   crypto.SecretKey
	ProofOfWork crypto.ProofOfWork
}

const defaultIdentityJSON = `{ "peer_id": "idsfYM6UbG2nhNS1dqhsJEchaDhmd9",
  "public_key": "17f7d11892274a7230d969aa1335d25e637f43087b76d0e24a1a8b7d03168f5c",
  "secret_key": "0271fac86d020aebe6a1c9768381e7245e48e77524cca2a1652d0a621fac289f",
  "proof_of_work_stamp": "b6a4a80d765047918b037c85958c41096326a4b52ff0377e" }`

// Default returns the built-in identity used when no identity file is given.
func Default() *Identity {
	id, err := Parse([]byte(defaultIdentityJSON))
	if err != nil {
		panic(fmt.Sprintf("built-in identity is invalid: %v", err))
	}
	return id
}

// Generate creates a fresh key pair and searches for a proof-of-work stamp
// meeting target. The search can take a long time for mainnet targets; it
// stops when ctx is done.
func Generate(ctx context.Context, target int) (*Identity, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Generate",
		"target":   target,
	})

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	logger.WithField("public_key_prefix", kp.Public.Short()).Info("Searching for proof of work stamp")
	stamp, err := crypto.GenerateProofOfWork(ctx, kp.Public, target)
	if err != nil {
		_ = crypto.WipeKeyPair(kp)
		return nil, fmt.Errorf("generate proof of work: %w", err)
	}

	id := &Identity{
		PeerID:      crypto.PeerID(kp.Public),
		PublicKey:   kp.Public,
		SecretKey:   kp.Private,
		ProofOfWork: stamp,
	}
	logger.WithField("peer_id", id.PeerID).Info("Identity generated")
	return id, nil
}

// Load reads an identity file. Inconsistencies between the fields are logged
// as warnings, not returned.
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity %s: %w", path, err)
	}

	id, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", path, err)
	}

	for _, w := range multierr.Errors(id.Verify()) {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     path,
			"peer_id":  id.PeerID,
			"warning":  w.Error(),
		}).Warn("Identity file is inconsistent")
	}
	return id, nil
}

// Parse decodes an identity from JSON.
func Parse(data []byte) (*Identity, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidIdentity)
	}
	doc := gjson.ParseBytes(data)

	field := func(name string) (string, error) {
		v := doc.Get(name)
		if !v.Exists() {
			return "", fmt.Errorf("%w: missing %q", ErrInvalidIdentity, name)
		}
		if v.Type != gjson.String {
			return "", fmt.Errorf("%w: %q is not a string", ErrInvalidIdentity, name)
		}
		return v.Str, nil
	}

	peerID, err := field("peer_id")
	if err != nil {
		return nil, err
	}
	pkHex, err := field("public_key")
	if err != nil {
		return nil, err
	}
	skHex, err := field("secret_key")
	if err != nil {
		return nil, err
	}
	powHex, err := field("proof_of_work_stamp")
	if err != nil {
		return nil, err
	}

	id := &Identity{PeerID: peerID}
	if id.PublicKey, err = crypto.ParsePublicKey(pkHex); err != nil {
		return nil, fmt.Errorf("%w: public_key: %v", ErrInvalidIdentity, err)
	}
	if id.SecretKey, err = crypto.ParseSecretKey(skHex); err != nil {
		return nil, fmt.Errorf("%w: secret_key: %v", ErrInvalidIdentity, err)
	}
	if id.ProofOfWork, err = crypto.ParseProofOfWork(powHex); err != nil {
		return nil, fmt.Errorf("%w: proof_of_work_stamp: %v", ErrInvalidIdentity, err)
	}
	return id, nil
}

// Verify checks the fields against each other and returns every
// inconsistency found, combined with multierr.
func (id *Identity) Verify() error {
	var err error

	kp, kerr := crypto.FromSecretKey(id.SecretKey)
	switch {
	case kerr != nil:
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrKeyMismatch, kerr))
	case kp.Public != id.PublicKey:
		err = multierr.Append(err, fmt.Errorf("%w: derived %s, file has %s", ErrKeyMismatch, kp.Public.Short(), id.PublicKey.Short()))
	}
	_ = crypto.WipeKeyPair(kp)

	if want := crypto.PeerID(id.PublicKey); want != id.PeerID {
		err = multierr.Append(err, fmt.Errorf("%w: expected %s, file has %s", ErrPeerIDMismatch, want, id.PeerID))
	}
	return err
}

// CheckProofOfWork reports whether the stamp satisfies target.
func (id *Identity) CheckProofOfWork(target int) error {
	return crypto.CheckProofOfWork(id.PublicKey, id.ProofOfWork, target)
}

// Marshal encodes the identity as JSON.
func (id *Identity) Marshal() ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	for _, kv := range []struct{ key, value string }{
		{"peer_id", id.PeerID},
		{"public_key", id.PublicKey.Hex()},
		{"secret_key", id.SecretKey.Hex()},
		{"proof_of_work_stamp", id.ProofOfWork.Hex()},
	} {
		if doc, err = sjson.SetBytes(doc, kv.key, kv.value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", kv.key, err)
		}
	}
	return doc, nil
}

// Save writes the identity to path, readable by the owner only.
func (id *Identity) Save(path string) error {
	doc, err := id.Marshal()
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(doc)

	if err := os.WriteFile(path, doc, 0o600); err != nil {
		return fmt.Errorf("write identity %s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Save",
		"path":     path,
		"peer_id":  id.PeerID,
	}).Info("Identity saved")
	return nil
}

// Wipe zeroes the secret key.
func (id *Identity) Wipe() {
	crypto.ZeroBytes(id.SecretKey[:])
}
