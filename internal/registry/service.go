package registry

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"carbon-scribe/blue-carbon-registry/pkg/chain"
	"carbon-scribe/blue-carbon-registry/pkg/geospatial"
	"carbon-scribe/blue-carbon-registry/pkg/workflows"
)

const defaultCO2PerCredit = 1.0

const (
	markerColorVerified = "#059669"
	markerColorPending  = "#eab308"
)

// Service defines the registry lifecycle operations
type Service interface {
	// Projects
	RegisterProject(ctx context.Context, req *RegisterProjectRequest) (*Project, error)
	VerifyProject(ctx context.Context, projectID string, decision VerificationDecision) (*Project, error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	ProjectMarkers(ctx context.Context) ([]ProjectMarker, error)

	// Credits
	MintCredits(ctx context.Context, req *MintCreditsRequest) (*CreditOperationResult, error)
	PurchaseCredit(ctx context.Context, creditID string, req *PurchaseCreditRequest) (*CreditOperationResult, error)
	RetireCredit(ctx context.Context, creditID string, req *RetireCreditRequest) (*CreditOperationResult, error)
	GetCredit(ctx context.Context, creditID string) (*CarbonCredit, error)
	ListCredits(ctx context.Context, filter CreditFilter) ([]CarbonCredit, error)

	// Transactions
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// Sensor telemetry
	RecordSensorReading(ctx context.Context, req *RecordSensorReadingRequest) (*SensorReading, error)
	ListSensorReadings(ctx context.Context, projectID string, sensorType SensorType) ([]SensorReading, error)
	LatestSensorReading(ctx context.Context, projectID string, sensorType SensorType) (*SensorReading, error)

	// Users and wallets
	RegisterUser(ctx context.Context, req *RegisterUserRequest) (*User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	ConnectWallet(ctx context.Context, req *ConnectWalletRequest) (*chain.WalletSession, error)
}

// Option customizes the service
type Option func(*registryService)

// WithClock overrides the time source used for verification and retirement
func WithClock(now func() time.Time) Option {
	return func(s *registryService) { s.now = now }
}

type registryService struct {
	store         Store
	publisher     Publisher
	simulator     *chain.Simulator
	logger        *zap.Logger
	now           func() time.Time
	projectStates *workflows.StateMachine[ProjectStatus]
	creditStates  *workflows.StateMachine[CreditStatus]
}

// NewService creates a registry service. A nil publisher discards events.
func NewService(store Store, publisher Publisher, simulator *chain.Simulator, logger *zap.Logger, opts ...Option) Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if simulator == nil {
		simulator = chain.NewSimulator("", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &registryService{
		store:         store,
		publisher:     publisher,
		simulator:     simulator,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		projectStates: NewProjectStateMachine(),
		creditStates:  NewCreditStateMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewProjectStateMachine returns the project verification transitions
func NewProjectStateMachine() *workflows.StateMachine[ProjectStatus] {
	return workflows.NewStateMachine(map[ProjectStatus][]ProjectStatus{
		ProjectStatusPending:  {ProjectStatusVerified, ProjectStatusRejected},
		ProjectStatusVerified: {},
		ProjectStatusRejected: {},
	})
}

// NewCreditStateMachine returns the credit transitions. A purchase keeps the
// credit available; retirement is terminal and sold has no way in or out.
func NewCreditStateMachine() *workflows.StateMachine[CreditStatus] {
	return workflows.NewStateMachine(map[CreditStatus][]CreditStatus{
		CreditStatusAvailable: {CreditStatusAvailable, CreditStatusRetired},
		CreditStatusSold:      {},
		CreditStatusRetired:   {},
	})
}

// =====================================================
// Projects
// =====================================================

func (s *registryService) RegisterProject(ctx context.Context, req *RegisterProjectRequest) (*Project, error) {
	var created Project
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		p, err := tx.CreateProject(Project{
			Name:                  strings.TrimSpace(req.Name),
			Description:           req.Description,
			ProjectType:           req.ProjectType,
			Area:                  req.Area,
			Latitude:              req.Latitude,
			Longitude:             req.Longitude,
			Location:              strings.TrimSpace(req.Location),
			DeveloperID:           req.DeveloperID,
			Status:                ProjectStatusPending,
			EstimatedCredits:      req.EstimatedCredits,
			VerificationDocuments: req.VerificationDocuments,
			SatelliteImagery:      req.SatelliteImagery,
		})
		created = p
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project registered", zap.String("project_id", created.ID), zap.String("type", string(created.ProjectType)))
	event := newEvent(EventProjectRegistered, created.CreatedAt)
	event.ProjectID = created.ID
	event.Data = map[string]any{"name": created.Name, "developer_id": created.DeveloperID}
	s.publish(ctx, event)
	return &created, nil
}

func (s *registryService) VerifyProject(ctx context.Context, projectID string, decision VerificationDecision) (*Project, error) {
	var target ProjectStatus
	switch decision {
	case DecisionApprove:
		target = ProjectStatusVerified
	case DecisionReject:
		target = ProjectStatusRejected
	default:
		return nil, FieldInvalid("decision", "must be one of: approve, reject")
	}

	// the decision time stamps both verifiedAt and the event
	decidedAt := s.now()
	var updated Project
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		p, err := tx.UpdateProject(projectID, func(p *Project) error {
			if !s.projectStates.CanTransition(p.Status, target) {
				return InvalidTransition("project %s is %s; only pending projects can be verified", p.ID, p.Status)
			}
			p.Status = target
			if target == ProjectStatusVerified {
				at := decidedAt
				p.VerifiedAt = &at
			}
			return nil
		})
		updated = p
		return err
	})
	if err != nil {
		return nil, err
	}

	eventType := EventProjectRejected
	if target == ProjectStatusVerified {
		eventType = EventProjectVerified
	}
	s.logger.Info("Project verification decided", zap.String("project_id", projectID), zap.String("status", string(target)))
	event := newEvent(eventType, decidedAt)
	event.ProjectID = projectID
	s.publish(ctx, event)
	return &updated, nil
}

func (s *registryService) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var found Project
	err := s.store.View(ctx, func(v View) error {
		p, ok := v.FindProject(projectID)
		if !ok {
			return NotFound("project", projectID)
		}
		found = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (s *registryService) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	if filter.Near != nil {
		if err := geospatial.ValidateCoordinates(filter.Near.Latitude, filter.Near.Longitude); err != nil {
			return nil, FieldInvalid("lat", err.Error())
		}
		if filter.Near.RadiusKm <= 0 {
			return nil, FieldInvalid("radius_km", "must be greater than 0")
		}
	}
	var projects []Project
	err := s.store.View(ctx, func(v View) error {
		projects = Filter(v.ListProjects(), filter.matches)
		return nil
	})
	return projects, err
}

func (s *registryService) ProjectMarkers(ctx context.Context) ([]ProjectMarker, error) {
	projects, err := s.ListProjects(ctx, ProjectFilter{})
	if err != nil {
		return nil, err
	}
	markers := make([]ProjectMarker, 0, len(projects))
	for _, p := range projects {
		color := markerColorPending
		if p.Status == ProjectStatusVerified {
			color = markerColorVerified
		}
		markers = append(markers, ProjectMarker{
			ProjectID:   p.ID,
			Name:        p.Name,
			ProjectType: p.ProjectType,
			Status:      p.Status,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Position:    geospatial.ToSphere(p.Latitude, p.Longitude, geospatial.GlobeRadius),
			Color:       color,
		})
	}
	return markers, nil
}

// =====================================================
// Credits
// =====================================================

func (s *registryService) MintCredits(ctx context.Context, req *MintCreditsRequest) (*CreditOperationResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, FieldInvalid("owner_id", "is required")
	}
	co2 := defaultCO2PerCredit
	if req.CO2PerCredit != nil {
		co2 = *req.CO2PerCredit
	}

	var result CreditOperationResult
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		project, ok := tx.FindProject(req.ProjectID)
		if !ok {
			return NotFound("project", req.ProjectID)
		}
		if project.Status != ProjectStatusVerified {
			return InvalidState("project %s is %s; credits can only be minted from verified projects", project.ID, project.Status)
		}
		if req.Amount <= 0 {
			return InvalidAmount("amount must be a positive integer, got %d", req.Amount)
		}
		if req.PricePerCredit < 0 || math.IsNaN(req.PricePerCredit) || math.IsInf(req.PricePerCredit, 0) {
			return FieldInvalid("price_per_credit", "must be a finite number of at least 0")
		}

		credit, err := tx.CreateCredit(CarbonCredit{
			ProjectID: project.ID,
			Amount:    req.Amount,
			Price:     req.PricePerCredit,
			OwnerID:   req.OwnerID,
			Status:    CreditStatusAvailable,
			CO2Amount: co2,
		})
		if err != nil {
			return err
		}
		txn, err := tx.CreateTransaction(Transaction{
			Type:     TransactionTypeMinting,
			CreditID: credit.ID,
			ToUserID: StringPtr(req.OwnerID),
			Amount:   req.Amount,
		})
		if err != nil {
			return err
		}
		result = CreditOperationResult{Credit: credit, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credits minted",
		zap.String("project_id", req.ProjectID),
		zap.String("credit_id", result.Credit.ID),
		zap.String("token_id", result.Credit.TokenID),
		zap.Int("amount", result.Credit.Amount),
	)
	s.publishCreditEvent(ctx, EventCreditMinted, &result)
	return &result, nil
}

func (s *registryService) PurchaseCredit(ctx context.Context, creditID string, req *PurchaseCreditRequest) (*CreditOperationResult, error) {
	if strings.TrimSpace(req.BuyerID) == "" {
		return nil, FieldInvalid("buyer_id", "is required")
	}

	var result CreditOperationResult
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		credit, ok := tx.FindCredit(creditID)
		if !ok {
			return NotFound("credit", creditID)
		}
		if !s.creditStates.CanTransition(credit.Status, CreditStatusAvailable) {
			return InvalidState("credit %s is %s; only available credits can be purchased", credit.ID, credit.Status)
		}
		if req.Amount <= 0 || req.Amount > credit.Amount {
			return InvalidAmount("amount must be between 1 and %d, got %d", credit.Amount, req.Amount)
		}

		// the whole record changes hands; partial lots are not split
		updated, err := tx.UpdateCredit(creditID, func(c *CarbonCredit) error {
			c.OwnerID = req.BuyerID
			return nil
		})
		if err != nil {
			return err
		}
		txn, err := tx.CreateTransaction(Transaction{
			Type:     TransactionTypePurchase,
			CreditID: creditID,
			ToUserID: StringPtr(req.BuyerID),
			Amount:   req.Amount,
			Price:    FloatPtr(credit.Price),
		})
		if err != nil {
			return err
		}
		result = CreditOperationResult{Credit: updated, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credit purchased",
		zap.String("credit_id", creditID),
		zap.String("buyer_id", req.BuyerID),
		zap.Int("amount", req.Amount),
	)
	s.publishCreditEvent(ctx, EventCreditPurchased, &result)
	return &result, nil
}

func (s *registryService) RetireCredit(ctx context.Context, creditID string, req *RetireCreditRequest) (*CreditOperationResult, error) {
	retiredBy := strings.TrimSpace(req.RetiredBy)
	if retiredBy == "" {
		return nil, FieldInvalid("retired_by", "is required")
	}
	var reason *string
	if req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
		reason = StringPtr(strings.TrimSpace(*req.Reason))
	}

	var result CreditOperationResult
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		credit, ok := tx.FindCredit(creditID)
		if !ok {
			return NotFound("credit", creditID)
		}
		if !s.creditStates.CanTransition(credit.Status, CreditStatusRetired) {
			return InvalidState("credit %s is %s; only available credits can be retired", credit.ID, credit.Status)
		}

		at := s.now()
		updated, err := tx.UpdateCredit(creditID, func(c *CarbonCredit) error {
			c.Status = CreditStatusRetired
			c.RetiredAt = &at
			c.RetiredBy = StringPtr(retiredBy)
			c.RetirementReason = reason
			return nil
		})
		if err != nil {
			return err
		}
		txn, err := tx.CreateTransaction(Transaction{
			Type:       TransactionTypeRetirement,
			CreditID:   creditID,
			FromUserID: StringPtr(retiredBy),
			Amount:     updated.Amount,
		})
		if err != nil {
			return err
		}
		result = CreditOperationResult{Credit: updated, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credit retired", zap.String("credit_id", creditID), zap.String("retired_by", retiredBy))
	s.publishCreditEvent(ctx, EventCreditRetired, &result)
	return &result, nil
}

func (s *registryService) GetCredit(ctx context.Context, creditID string) (*CarbonCredit, error) {
	var found CarbonCredit
	err := s.store.View(ctx, func(v View) error {
		c, ok := v.FindCredit(creditID)
		if !ok {
			return NotFound("credit", creditID)
		}
		found = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (s *registryService) ListCredits(ctx context.Context, filter CreditFilter) ([]CarbonCredit, error) {
	var credits []CarbonCredit
	err := s.store.View(ctx, func(v View) error {
		credits = Filter(v.ListCredits(), filter.matches)
		return nil
	})
	return credits, err
}

// =====================================================
// Transactions
// =====================================================

func (s *registryService) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	var found Transaction
	err := s.store.View(ctx, func(v View) error {
		t, ok := v.FindTransaction(transactionID)
		if !ok {
			return NotFound("transaction", transactionID)
		}
		found = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// ListTransactions returns matching transactions, newest first
func (s *registryService) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var txs []Transaction
	err := s.store.View(ctx, func(v View) error {
		txs = Filter(v.ListTransactions(), filter.matches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortTransactionsNewestFirst(txs)
	return txs, nil
}

// =====================================================
// Sensor telemetry
// =====================================================

func (s *registryService) RecordSensorReading(ctx context.Context, req *RecordSensorReadingRequest) (*SensorReading, error) {
	if req.Value == nil {
		return nil, FieldInvalid("value", "is required")
	}

	var created SensorReading
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		r, err := tx.CreateSensorReading(SensorReading{
			ProjectID:  req.ProjectID,
			SensorType: req.SensorType,
			Value:      *req.Value,
			Unit:       req.Unit,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			Metadata:   req.Metadata,
		})
		created = r
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Sensor reading recorded",
		zap.String("project_id", created.ProjectID),
		zap.String("sensor_type", string(created.SensorType)),
		zap.Float64("value", created.Value),
	)
	event := newEvent(EventSensorRecorded, created.Timestamp)
	event.ProjectID = created.ProjectID
	event.Data = map[string]any{
		"reading_id":  created.ID,
		"sensor_type": created.SensorType,
		"value":       created.Value,
		"unit":        created.Unit,
	}
	s.publish(ctx, event)
	return &created, nil
}

// ListSensorReadings returns a project's readings newest first, optionally
// restricted to one sensor type
func (s *registryService) ListSensorReadings(ctx context.Context, projectID string, sensorType SensorType) ([]SensorReading, error) {
	var readings []SensorReading
	err := s.store.View(ctx, func(v View) error {
		if _, ok := v.FindProject(projectID); !ok {
			return NotFound("project", projectID)
		}
		readings = Filter(v.ListSensorReadings(), func(r SensorReading) bool {
			return r.ProjectID == projectID && (sensorType == "" || r.SensorType == sensorType)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortReadingsNewestFirst(readings)
	return readings, nil
}

func (s *registryService) LatestSensorReading(ctx context.Context, projectID string, sensorType SensorType) (*SensorReading, error) {
	readings, err := s.ListSensorReadings(ctx, projectID, sensorType)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, NotFound("sensor reading", projectID+"/"+string(sensorType))
	}
	return &readings[0], nil
}

// =====================================================
// Users and wallets
// =====================================================

func (s *registryService) RegisterUser(ctx context.Context, req *RegisterUserRequest) (*User, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = UserRoleUser
	}

	var created User
	err = s.store.RunInTransaction(ctx, func(tx Tx) error {
		u, err := tx.CreateUser(User{
			Username:      strings.TrimSpace(req.Username),
			PasswordHash:  string(hash),
			WalletAddress: req.WalletAddress,
			Role:          role,
		})
		created = u
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.String("user_id", created.ID), zap.String("role", string(created.Role)))
	return &created, nil
}

func (s *registryService) GetUser(ctx context.Context, userID string) (*User, error) {
	var found User
	err := s.store.View(ctx, func(v View) error {
		u, ok := v.FindUser(userID)
		if !ok {
			return NotFound("user", userID)
		}
		found = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// ConnectWallet simulates a wallet handshake and, when a user id is given,
// records the wallet address on that user.
func (s *registryService) ConnectWallet(ctx context.Context, req *ConnectWalletRequest) (*chain.WalletSession, error) {
	session, err := s.simulator.Connect(strings.TrimSpace(req.WalletAddress), s.now())
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return session, nil
	}

	err = s.store.RunInTransaction(ctx, func(tx Tx) error {
		_, err := tx.UpdateUser(req.UserID, func(u *User) error {
			u.WalletAddress = StringPtr(session.Address)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// =====================================================
// Event publication
// =====================================================

func (s *registryService) publishCreditEvent(ctx context.Context, eventType EventType, result *CreditOperationResult) {
	event := newEvent(eventType, result.Transaction.CreatedAt)
	event.ProjectID = result.Credit.ProjectID
	event.CreditID = result.Credit.ID
	event.TransactionID = result.Transaction.ID
	event.Data = map[string]any{
		"token_id": result.Credit.TokenID,
		"amount":   result.Transaction.Amount,
		"owner_id": result.Credit.OwnerID,
		"tx_hash":  result.Transaction.TxHash,
	}
	s.publish(ctx, event)
}

func (s *registryService) publish(ctx context.Context, event Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
