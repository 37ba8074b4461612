// Package security signs and verifies registry documents with a secp256k1
// registry key.
package security

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("signature does not match document")

// SignatureInfo describes a signature over a document digest
type SignatureInfo struct {
	SignerAddress string    `json:"signer_address"`
	Digest        string    `json:"digest"`
	Signature     string    `json:"signature"`
	SigningTime   time.Time `json:"signing_time"`
}

// Signer holds the registry key used to sign documents
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a hex-encoded private key. An empty key generates an
// ephemeral one, so signatures only verify for the life of the process.
func NewSigner(hexKey string) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
	} else {
		key, err = crypto.HexToECDSA(hexKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer's account address
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Sign signs the keccak256 digest of document
func (s *Signer) Sign(document []byte, at time.Time) (*SignatureInfo, error) {
	digest := crypto.Keccak256Hash(document)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign document: %w", err)
	}
	return &SignatureInfo{
		SignerAddress: s.Address(),
		Digest:        digest.Hex(),
		Signature:     hexutil.Encode(sig),
		SigningTime:   at,
	}, nil
}

// Verify checks that info was produced over document by info.SignerAddress
func Verify(document []byte, info SignatureInfo) error {
	digest := crypto.Keccak256Hash(document)
	if digest.Hex() != info.Digest {
		return ErrInvalidSignature
	}
	sig, err := hexutil.Decode(info.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(info.SignerAddress) {
		return ErrInvalidSignature
	}
	return nil
}
