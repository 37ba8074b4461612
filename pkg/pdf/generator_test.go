package pdf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCertificate() Certificate {
	return Certificate{
		CertificateID: "tx-9",
		TokenID:       "BCR-ABCD1234-1700000000000-1",
		ProjectName:   "Kerala Mangrove Restoration",
		ProjectType:   "mangrove",
		Location:      "Kerala, India",
		Amount:        150,
		CO2Tonnes:     150,
		RetiredBy:     "alice",
		RetiredAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Reason:        "2025 offset",
		TxHash:        "0xabc",
		Network:       "ethereum",
	}
}

func TestGenerateCertificate(t *testing.T) {
	gen := NewGenerator("", "SIMULATED")

	r, err := gen.Generate(context.Background(), sampleCertificate(), &Seal{
		SignerAddress: "0x0000000000000000000000000000000000000001",
		Digest:        "0x01",
		Signature:     "0x02",
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))

	// readers are seekable so handlers can serve ranges
	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator("Registry", "").Generate(ctx, sampleCertificate(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
