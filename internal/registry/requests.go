package registry

import "carbon-scribe/blue-carbon-registry/pkg/geospatial"

// VerificationDecision is a verifier's ruling on a pending project
type VerificationDecision string

const (
	DecisionApprove VerificationDecision = "approve"
	DecisionReject  VerificationDecision = "reject"
)

// RegisterProjectRequest is the input for registering a project
type RegisterProjectRequest struct {
	Name                  string            `json:"name"`
	Description           string            `json:"description"`
	ProjectType           ProjectType       `json:"project_type"`
	Area                  float64           `json:"area"`
	Latitude              float64           `json:"latitude"`
	Longitude             float64           `json:"longitude"`
	Location              string            `json:"location"`
	DeveloperID           string            `json:"developer_id"`
	EstimatedCredits      int               `json:"estimated_credits"`
	VerificationDocuments map[string]bool   `json:"verification_documents"`
	SatelliteImagery      *SatelliteImagery `json:"satellite_imagery,omitempty"`
}

// VerifyProjectRequest accepts either a decision or the target status
type VerifyProjectRequest struct {
	Decision VerificationDecision `json:"decision"`
	Status   ProjectStatus        `json:"status"`
}

// ResolveDecision maps the request onto a decision, accepting the status form
// used by older clients.
func (r VerifyProjectRequest) ResolveDecision() VerificationDecision {
	if r.Decision != "" {
		return r.Decision
	}
	switch r.Status {
	case ProjectStatusVerified:
		return DecisionApprove
	case ProjectStatusRejected:
		return DecisionReject
	}
	return VerificationDecision(r.Status)
}

// MintCreditsRequest is the input for minting a credit batch
type MintCreditsRequest struct {
	ProjectID      string   `json:"project_id"`
	Amount         int      `json:"amount"`
	PricePerCredit float64  `json:"price_per_credit"`
	OwnerID        string   `json:"owner_id"`
	CO2PerCredit   *float64 `json:"co2_per_credit,omitempty"`
}

// PurchaseCreditRequest is the input for buying a credit record
type PurchaseCreditRequest struct {
	BuyerID string `json:"buyer_id"`
	Amount  int    `json:"amount"`
}

// RetireCreditRequest is the input for retiring a credit
type RetireCreditRequest struct {
	RetiredBy string  `json:"retired_by"`
	Reason    *string `json:"reason,omitempty"`
}

// RecordSensorReadingRequest is the input for telemetry ingestion
type RecordSensorReadingRequest struct {
	ProjectID  string         `json:"project_id"`
	SensorType SensorType     `json:"sensor_type"`
	Value      *float64       `json:"value"`
	Unit       string         `json:"unit"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RegisterUserRequest is the input for creating a user
type RegisterUserRequest struct {
	Username      string   `json:"username" validate:"required,min=3,max=64"`
	Password      string   `json:"password" validate:"required,min=8,max=72"`
	WalletAddress *string  `json:"wallet_address,omitempty"`
	Role          UserRole `json:"role" validate:"omitempty,oneof=user developer verifier"`
}

// ConnectWalletRequest links a simulated wallet session, optionally to a user
type ConnectWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
	UserID        string `json:"user_id,omitempty"`
}

// CreditOperationResult is returned by every credit-changing operation
type CreditOperationResult struct {
	Credit      CarbonCredit `json:"credit"`
	Transaction Transaction  `json:"transaction"`
}

// RadiusFilter selects projects within RadiusKm of a point
type RadiusFilter struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// ProjectFilter narrows ListProjects. Zero values match everything.
type ProjectFilter struct {
	DeveloperID string
	Status      ProjectStatus
	ProjectType ProjectType
	Near        *RadiusFilter
}

func (f ProjectFilter) matches(p Project) bool {
	if f.DeveloperID != "" && p.DeveloperID != f.DeveloperID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.ProjectType != "" && p.ProjectType != f.ProjectType {
		return false
	}
	if f.Near != nil && !geospatial.WithinRadius(f.Near.Latitude, f.Near.Longitude, p.Latitude, p.Longitude, f.Near.RadiusKm) {
		return false
	}
	return true
}

// CreditFilter narrows ListCredits
type CreditFilter struct {
	OwnerID   string
	ProjectID string
	Status    CreditStatus
}

func (f CreditFilter) matches(c CarbonCredit) bool {
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	if f.ProjectID != "" && c.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// TransactionFilter narrows ListTransactions. UserID matches either side.
type TransactionFilter struct {
	UserID   string
	CreditID string
	Type     TransactionType
}

func (f TransactionFilter) matches(t Transaction) bool {
	if f.UserID != "" && !involves(t, f.UserID) {
		return false
	}
	if f.CreditID != "" && t.CreditID != f.CreditID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	return true
}

func involves(t Transaction, userID string) bool {
	return (t.FromUserID != nil && *t.FromUserID == userID) ||
		(t.ToUserID != nil && *t.ToUserID == userID)
}

// ProjectMarker places a project on the globe view
type ProjectMarker struct {
	ProjectID   string             `json:"project_id"`
	Name        string             `json:"name"`
	ProjectType ProjectType        `json:"project_type"`
	Status      ProjectStatus      `json:"status"`
	Latitude    float64            `json:"latitude"`
	Longitude   float64            `json:"longitude"`
	Position    geospatial.Vector3 `json:"position"`
	Color       string             `json:"color"`
}
