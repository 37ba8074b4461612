// Package pdf renders carbon credit retirement certificates.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate is the content of a retirement certificate
type Certificate struct {
	CertificateID string    `json:"certificate_id"`
	TokenID       string    `json:"token_id"`
	ProjectName   string    `json:"project_name"`
	ProjectType   string    `json:"project_type"`
	Location      string    `json:"location"`
	Amount        int       `json:"amount"`
	CO2Tonnes     float64   `json:"co2_tonnes"`
	RetiredBy     string    `json:"retired_by"`
	RetiredAt     time.Time `json:"retired_at"`
	Reason        string    `json:"reason,omitempty"`
	TxHash        string    `json:"tx_hash"`
	Network       string    `json:"network"`
}

// Seal is the registry signature printed at the foot of a certificate
type Seal struct {
	SignerAddress string
	Digest        string
	Signature     string
}

// Generator renders certificates
type Generator interface {
	Generate(ctx context.Context, cert Certificate, seal *Seal) (io.ReadSeeker, error)
}

type gofpdfGenerator struct {
	issuer    string
	watermark string
}

// NewGenerator creates a certificate generator. A non-empty watermark is
// stamped diagonally across every page.
func NewGenerator(issuer, watermark string) Generator {
	if issuer == "" {
		issuer = "Blue Carbon Registry"
	}
	return &gofpdfGenerator{issuer: issuer, watermark: watermark}
}

func (g *gofpdfGenerator) Generate(ctx context.Context, cert Certificate, seal *Seal) (io.ReadSeeker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Retirement Certificate "+cert.TokenID, true)
	pdf.SetAuthor(g.issuer, true)
	pdf.AddPage()

	width, height := pdf.GetPageSize()

	// Border
	pdf.SetDrawColor(5, 150, 105)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(14, 14, width-28, height-28, "D")

	if g.watermark != "" {
		g.addWatermark(pdf, width, height)
	}

	pdf.SetY(28)
	pdf.SetFont("Arial", "B", 26)
	pdf.SetTextColor(5, 150, 105)
	pdf.CellFormat(0, 12, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 8, "Issued by "+g.issuer, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, cert.RetiredBy, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("has permanently retired %d credits representing %.2f tonnes of CO2", cert.Amount, cert.CO2Tonnes), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("from %s (%s), %s", cert.ProjectName, cert.ProjectType, cert.Location), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Certificate", cert.CertificateID},
		{"Token", cert.TokenID},
		{"Retired at", cert.RetiredAt.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Transaction", cert.TxHash},
		{"Network", cert.Network},
	}
	if cert.Reason != "" {
		rows = append(rows, [2]string{"Reason", cert.Reason})
	}

	left := (width - 220) / 2
	for _, row := range rows {
		pdf.SetX(left)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 7, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 10)
		pdf.CellFormat(175, 7, row[1], "", 1, "L", false, 0, "")
	}

	if seal != nil {
		pdf.SetY(height - 42)
		pdf.SetFont("Arial", "B", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 5, "Registry seal", "", 1, "C", false, 0, "")
		pdf.SetFont("Courier", "", 7)
		pdf.CellFormat(0, 4, "signer "+seal.SignerAddress, "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 4, "digest "+seal.Digest, "", 1, "C", false, 0, "")
		pdf.MultiCell(0, 4, "signature "+seal.Signature, "", "C", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

func (g *gofpdfGenerator) addWatermark(pdf *gofpdf.Fpdf, width, height float64) {
	pdf.SetFont("Arial", "B", 60)
	pdf.SetTextColor(230, 230, 230)
	pdf.TransformBegin()
	pdf.TransformRotate(30, width/2, height/2)
	pdf.Text(width/2-60, height/2, g.watermark)
	pdf.TransformEnd()
}
