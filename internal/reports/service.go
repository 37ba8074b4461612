// Package reports builds ledger exports and retirement certificates from
// registry state.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/reports/export"
	"carbon-scribe/blue-carbon-registry/pkg/pdf"
	"carbon-scribe/blue-carbon-registry/pkg/security"
)

// Service defines the interface for report operations
type Service interface {
	TransactionLedger(ctx context.Context, filter registry.TransactionFilter) (export.Table, error)
	ProjectRegister(ctx context.Context, filter registry.ProjectFilter) (export.Table, error)
	RetirementCertificate(ctx context.Context, creditID string) (*CertificateRecord, error)
	RenderCertificate(ctx context.Context, record *CertificateRecord) (io.ReadSeeker, error)
	VerifyCertificate(record CertificateRecord) error
}

// CertificateRecord is a retirement certificate and its registry seal
type CertificateRecord struct {
	Certificate pdf.Certificate         `json:"certificate"`
	Signature   *security.SignatureInfo `json:"signature"`
}

type service struct {
	registry  registry.Service
	generator pdf.Generator
	signer    *security.Signer
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a report service. A nil signer leaves certificates unsealed.
func NewService(reg registry.Service, generator pdf.Generator, signer *security.Signer, logger *zap.Logger) Service {
	return &service{
		registry:  reg,
		generator: generator,
		signer:    signer,
		logger:    logger,
		now:       time.Now,
	}
}

// =====================================================
// Ledger exports
// =====================================================

var transactionColumns = []string{
	"id", "type", "credit_id", "token_id", "project_id", "project_name",
	"from_user_id", "to_user_id", "amount", "price", "tx_hash", "blockchain_network", "created_at",
}

var transactionLabels = []string{
	"ID", "Type", "Credit", "Token", "Project ID", "Project",
	"From", "To", "Amount", "Price", "Tx Hash", "Network", "Created At",
}

// TransactionLedger renders transactions newest first with credit and
// project context joined in
func (s *service) TransactionLedger(ctx context.Context, filter registry.TransactionFilter) (export.Table, error) {
	txs, err := s.registry.ListTransactions(ctx, filter)
	if err != nil {
		return export.Table{}, err
	}
	credits, err := s.registry.ListCredits(ctx, registry.CreditFilter{})
	if err != nil {
		return export.Table{}, err
	}
	projects, err := s.registry.ListProjects(ctx, registry.ProjectFilter{})
	if err != nil {
		return export.Table{}, err
	}

	creditByID := make(map[string]registry.CarbonCredit, len(credits))
	for _, c := range credits {
		creditByID[c.ID] = c
	}
	projectByID := make(map[string]registry.Project, len(projects))
	for _, p := range projects {
		projectByID[p.ID] = p
	}

	var volume int
	var value float64
	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		credit := creditByID[tx.CreditID]
		project := projectByID[credit.ProjectID]
		rows = append(rows, []any{
			tx.ID, string(tx.Type), tx.CreditID, credit.TokenID, credit.ProjectID, project.Name,
			tx.FromUserID, tx.ToUserID, tx.Amount, tx.Price, tx.TxHash, tx.BlockchainNetwork, tx.CreatedAt,
		})
		volume += tx.Amount
		if tx.Price != nil {
			value += float64(tx.Amount) * *tx.Price
		}
	}

	return export.Table{
		Title:   "Transaction Ledger",
		Columns: transactionColumns,
		Labels:  transactionLabels,
		Rows:    rows,
		Summary: []export.SummaryItem{
			{Label: "Transactions", Value: len(rows)},
			{Label: "Credits moved", Value: volume},
			{Label: "Priced value", Value: value},
		},
	}, nil
}

var projectColumns = []string{
	"id", "name", "project_type", "location", "area", "status",
	"estimated_credits", "developer_id", "created_at", "verified_at",
}

var projectLabels = []string{
	"ID", "Name", "Type", "Location", "Area (ha)", "Status",
	"Estimated Credits", "Developer", "Created At", "Verified At",
}

// ProjectRegister renders the project list in insertion order
func (s *service) ProjectRegister(ctx context.Context, filter registry.ProjectFilter) (export.Table, error) {
	projects, err := s.registry.ListProjects(ctx, filter)
	if err != nil {
		return export.Table{}, err
	}

	var verified int
	var area float64
	rows := make([][]any, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []any{
			p.ID, p.Name, string(p.ProjectType), p.Location, p.Area, string(p.Status),
			p.EstimatedCredits, p.DeveloperID, p.CreatedAt, p.VerifiedAt,
		})
		if p.Status == registry.ProjectStatusVerified {
			verified++
		}
		area += p.Area
	}

	return export.Table{
		Title:   "Project Register",
		Columns: projectColumns,
		Labels:  projectLabels,
		Rows:    rows,
		Summary: []export.SummaryItem{
			{Label: "Projects", Value: len(rows)},
			{Label: "Verified", Value: verified},
			{Label: "Total area (ha)", Value: area},
		},
	}, nil
}

// =====================================================
// Retirement certificates
// =====================================================

// RetirementCertificate assembles the certificate for a retired credit
func (s *service) RetirementCertificate(ctx context.Context, creditID string) (*CertificateRecord, error) {
	credit, err := s.registry.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.Status != registry.CreditStatusRetired || credit.RetiredAt == nil || credit.RetiredBy == nil {
		return nil, registry.InvalidState("credit %s is not retired", creditID)
	}

	project, err := s.registry.GetProject(ctx, credit.ProjectID)
	if err != nil {
		return nil, err
	}

	txs, err := s.registry.ListTransactions(ctx, registry.TransactionFilter{
		CreditID: credit.ID,
		Type:     registry.TransactionTypeRetirement,
	})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("credit %s has no retirement transaction", credit.ID)
	}
	retirement := txs[0]

	cert := pdf.Certificate{
		CertificateID: retirement.ID,
		TokenID:       credit.TokenID,
		ProjectName:   project.Name,
		ProjectType:   string(project.ProjectType),
		Location:      project.Location,
		Amount:        credit.Amount,
		CO2Tonnes:     credit.CO2Amount * float64(credit.Amount),
		RetiredBy:     *credit.RetiredBy,
		RetiredAt:     credit.RetiredAt.UTC(),
		TxHash:        retirement.TxHash,
		Network:       retirement.BlockchainNetwork,
	}
	if credit.RetirementReason != nil {
		cert.Reason = *credit.RetirementReason
	}

	record := &CertificateRecord{Certificate: cert}
	if s.signer != nil {
		doc, err := json.Marshal(cert)
		if err != nil {
			return nil, fmt.Errorf("encode certificate: %w", err)
		}
		if record.Signature, err = s.signer.Sign(doc, s.now().UTC()); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// RenderCertificate draws the certificate as a PDF
func (s *service) RenderCertificate(ctx context.Context, record *CertificateRecord) (io.ReadSeeker, error) {
	var seal *pdf.Seal
	if record.Signature != nil {
		seal = &pdf.Seal{
			SignerAddress: record.Signature.SignerAddress,
			Digest:        record.Signature.Digest,
			Signature:     record.Signature.Signature,
		}
	}
	return s.generator.Generate(ctx, record.Certificate, seal)
}

// VerifyCertificate checks the seal against the certificate content and,
// when this registry signs certificates, that it was sealed by our key
func (s *service) VerifyCertificate(record CertificateRecord) error {
	if record.Signature == nil {
		return registry.FieldInvalid("signature", "is required")
	}
	if s.signer != nil && !strings.EqualFold(record.Signature.SignerAddress, s.signer.Address()) {
		return security.ErrInvalidSignature
	}
	doc, err := json.Marshal(record.Certificate)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}
	return security.Verify(doc, *record.Signature)
}
