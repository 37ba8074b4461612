// Package chain fabricates ledger artifacts (transaction hashes, token ids,
// wallet sessions) for a named network. Nothing is signed or broadcast.
package chain

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultNetwork     = "ethereum"
	DefaultTokenPrefix = "BCR"
)

// Simulator produces deterministic stand-ins for on-chain values
type Simulator struct {
	network     string
	tokenPrefix string
}

// WalletSession is the result of a simulated wallet connection
type WalletSession struct {
	Address     string    `json:"wallet_address"`
	Balance     string    `json:"balance"`
	Network     string    `json:"network"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewSimulator creates a simulator for the given network tag
func NewSimulator(network, tokenPrefix string) *Simulator {
	if network == "" {
		network = DefaultNetwork
	}
	if tokenPrefix == "" {
		tokenPrefix = DefaultTokenPrefix
	}
	return &Simulator{network: network, tokenPrefix: tokenPrefix}
}

// Network returns the network tag recorded on transactions
func (s *Simulator) Network() string {
	return s.network
}

// TokenID derives a token id from the minting project, the mint time and a
// store-wide sequence number. The sequence keeps ids unique when two mints of
// the same project land on the same millisecond.
func (s *Simulator) TokenID(projectID string, mintedAt time.Time, seq uint64) string {
	return fmt.Sprintf("%s-%s-%d-%d", s.tokenPrefix, shortID(projectID), mintedAt.UnixMilli(), seq)
}

// TxHash returns a keccak256 hash over the network tag and the given parts
func (s *Simulator) TxHash(parts ...string) string {
	payload := s.network + "\x00" + strings.Join(parts, "\x00")
	return crypto.Keccak256Hash([]byte(payload)).Hex()
}

// Connect simulates a wallet handshake. An empty address gets a freshly
// generated account. Hex addresses are checksummed; any other identifier is
// kept as given.
func (s *Simulator) Connect(address string, now time.Time) (*WalletSession, error) {
	switch {
	case address == "":
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate wallet key: %w", err)
		}
		address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	case common.IsHexAddress(address):
		address = common.HexToAddress(address).Hex()
	}

	return &WalletSession{
		Address:     address,
		Balance:     simulatedBalance(address),
		Network:     s.network,
		ConnectedAt: now,
	}, nil
}

// simulatedBalance is stable per address so repeated connects agree
func simulatedBalance(address string) string {
	h := crypto.Keccak256([]byte(address))
	units := binary.BigEndian.Uint64(h[:8]) % 100000
	return fmt.Sprintf("%d.%04d ETH", units/10000, units%10000)
}

func shortID(id string) string {
	clean := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(clean) > 8 {
		clean = clean[:8]
	}
	if clean == "" {
		clean = "NOPROJ"
	}
	return clean
}
