package registry

import (
	"maps"
	"time"
)

// ProjectType identifies the coastal ecosystem under restoration
type ProjectType string

const (
	ProjectTypeMangrove  ProjectType = "mangrove"
	ProjectTypeSeagrass  ProjectType = "seagrass"
	ProjectTypeSaltMarsh ProjectType = "salt_marsh"
)

// ProjectStatus represents the verification state of a project
type ProjectStatus string

const (
	ProjectStatusPending  ProjectStatus = "pending"
	ProjectStatusVerified ProjectStatus = "verified"
	ProjectStatusRejected ProjectStatus = "rejected"
)

// CreditStatus represents the lifecycle state of a carbon credit.
// CreditStatusSold is reserved; no operation produces it.
type CreditStatus string

const (
	CreditStatusAvailable CreditStatus = "available"
	CreditStatusSold      CreditStatus = "sold"
	CreditStatusRetired   CreditStatus = "retired"
)

// TransactionType classifies ledger entries
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeSale       TransactionType = "sale"
	TransactionTypeRetirement TransactionType = "retirement"
	TransactionTypeMinting    TransactionType = "minting"
)

// SensorType is the documented set of telemetry kinds. Ingestion does not
// restrict readings to these values.
type SensorType string

const (
	SensorTypeCO2        SensorType = "co2"
	SensorTypeBiomass    SensorType = "biomass"
	SensorTypeSoilCarbon SensorType = "soil_carbon"
	SensorTypeWeather    SensorType = "weather"
)

// UserRole is the coarse role carried on a user record
type UserRole string

const (
	UserRoleUser      UserRole = "user"
	UserRoleDeveloper UserRole = "developer"
	UserRoleVerifier  UserRole = "verifier"
)

// SatelliteImagery holds before/after image references for a project
type SatelliteImagery struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Project is a registered restoration effort
type Project struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name" validate:"required"`
	Description           string            `json:"description"`
	ProjectType           ProjectType       `json:"project_type" validate:"required,oneof=mangrove seagrass salt_marsh"`
	Area                  float64           `json:"area" validate:"gt=0"`
	Latitude              float64           `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude             float64           `json:"longitude" validate:"gte=-180,lte=180"`
	Location              string            `json:"location" validate:"required"`
	DeveloperID           string            `json:"developer_id"`
	Status                ProjectStatus     `json:"status" validate:"required,oneof=pending verified rejected"`
	EstimatedCredits      int               `json:"estimated_credits" validate:"gte=0"`
	VerificationDocuments map[string]bool   `json:"verification_documents"`
	SatelliteImagery      *SatelliteImagery `json:"satellite_imagery,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	VerifiedAt            *time.Time        `json:"verified_at"`
}

// CarbonCredit is a batch of credits minted from a verified project
type CarbonCredit struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"project_id" validate:"required"`
	TokenID          string       `json:"token_id" validate:"required"`
	Amount           int          `json:"amount" validate:"gt=0"`
	Price            float64      `json:"price" validate:"gte=0"`
	OwnerID          string       `json:"owner_id" validate:"required"`
	Status           CreditStatus `json:"status" validate:"required,oneof=available sold retired"`
	CO2Amount        float64      `json:"co2_amount" validate:"gt=0"`
	MintedAt         time.Time    `json:"minted_at"`
	RetiredAt        *time.Time   `json:"retired_at"`
	RetiredBy        *string      `json:"retired_by"`
	RetirementReason *string      `json:"retirement_reason,omitempty"`
}

// Transaction is an append-only ledger entry
type Transaction struct {
	ID                string          `json:"id"`
	Type              TransactionType `json:"type" validate:"required,oneof=purchase sale retirement minting"`
	CreditID          string          `json:"credit_id" validate:"required"`
	FromUserID        *string         `json:"from_user_id"`
	ToUserID          *string         `json:"to_user_id"`
	Amount            int             `json:"amount" validate:"gt=0"`
	Price             *float64        `json:"price"`
	TxHash            string          `json:"tx_hash" validate:"required"`
	BlockchainNetwork string          `json:"blockchain_network" validate:"required"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SensorReading is an append-only telemetry sample
type SensorReading struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id" validate:"required"`
	SensorType SensorType     `json:"sensor_type"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit"`
	Latitude   *float64       `json:"latitude"`
	Longitude  *float64       `json:"longitude"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// User is a registry participant
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username" validate:"required,min=3,max=64"`
	PasswordHash  string    `json:"-"`
	WalletAddress *string   `json:"wallet_address"`
	Role          UserRole  `json:"role" validate:"required,oneof=user developer verifier"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of every collection in insertion order
type Snapshot struct {
	Projects       []Project       `json:"projects"`
	Credits        []CarbonCredit  `json:"credits"`
	Transactions   []Transaction   `json:"transactions"`
	SensorReadings []SensorReading `json:"sensor_readings"`
	Users          []User          `json:"users"`
	TokenSequence  uint64          `json:"token_sequence"`
}

// =====================================================
// Copy helpers
// =====================================================

// Clone returns a deep copy of the project
func (p Project) Clone() Project {
	p.VerificationDocuments = maps.Clone(p.VerificationDocuments)
	if p.SatelliteImagery != nil {
		img := *p.SatelliteImagery
		p.SatelliteImagery = &img
	}
	p.VerifiedAt = cloneTime(p.VerifiedAt)
	return p
}

// Clone returns a deep copy of the credit
func (c CarbonCredit) Clone() CarbonCredit {
	c.RetiredAt = cloneTime(c.RetiredAt)
	c.RetiredBy = cloneString(c.RetiredBy)
	c.RetirementReason = cloneString(c.RetirementReason)
	return c
}

// Clone returns a deep copy of the transaction
func (t Transaction) Clone() Transaction {
	t.FromUserID = cloneString(t.FromUserID)
	t.ToUserID = cloneString(t.ToUserID)
	if t.Price != nil {
		price := *t.Price
		t.Price = &price
	}
	return t
}

// Clone returns a deep copy of the reading
func (s SensorReading) Clone() SensorReading {
	s.Latitude = cloneFloat(s.Latitude)
	s.Longitude = cloneFloat(s.Longitude)
	s.Metadata = maps.Clone(s.Metadata)
	return s
}

// Clone returns a deep copy of the user
func (u User) Clone() User {
	u.WalletAddress = cloneString(u.WalletAddress)
	return u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }

// FloatPtr returns a pointer to f
func FloatPtr(f float64) *float64 { return &f }
