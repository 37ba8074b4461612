package memory

import (
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
)

type transaction struct {
	reader
	state     state
	now       time.Time
	simulator *chain.Simulator
}

func newID() string {
	return uuid.New().String()
}

// =====================================================
// Projects
// =====================================================

func (tx *transaction) CreateProject(p registry.Project) (registry.Project, error) {
	p = p.Clone()
	p.ID = newID()
	p.CreatedAt = tx.now
	if p.Status == "" {
		p.Status = registry.ProjectStatusPending
	}
	if p.VerificationDocuments == nil {
		p.VerificationDocuments = map[string]bool{}
	}
	if err := registry.ValidateProject(p); err != nil {
		return registry.Project{}, err
	}
	tx.state.projects.insert(p.ID, p)
	return p.Clone(), nil
}

func (tx *transaction) UpdateProject(id string, mutator func(*registry.Project) error) (registry.Project, error) {
	current, ok := tx.state.projects.get(id)
	if !ok {
		return registry.Project{}, registry.NotFound("project", id)
	}
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return registry.Project{}, err
	}
	if next.ID != current.ID {
		return registry.Project{}, registry.FieldInvalid("id", "is immutable")
	}
	if !next.CreatedAt.Equal(current.CreatedAt) {
		return registry.Project{}, registry.FieldInvalid("created_at", "is immutable")
	}
	if current.VerifiedAt != nil && (next.VerifiedAt == nil || !next.VerifiedAt.Equal(*current.VerifiedAt)) {
		return registry.Project{}, registry.FieldInvalid("verified_at", "is fixed once set")
	}
	if err := registry.ValidateProject(next); err != nil {
		return registry.Project{}, err
	}
	tx.state.projects.insert(id, next)
	return next.Clone(), nil
}

// =====================================================
// Credits
// =====================================================

func (tx *transaction) CreateCredit(c registry.CarbonCredit) (registry.CarbonCredit, error) {
	c = c.Clone()
	c.ID = newID()
	c.MintedAt = tx.now
	if c.Status == "" {
		c.Status = registry.CreditStatusAvailable
	}
	if c.TokenID == "" {
		tx.state.tokenSeq++
		c.TokenID = tx.simulator.TokenID(c.ProjectID, tx.now, tx.state.tokenSeq)
	}
	if err := registry.ValidateCredit(c); err != nil {
		return registry.CarbonCredit{}, err
	}
	if _, ok := tx.state.projects.get(c.ProjectID); !ok {
		return registry.CarbonCredit{}, registry.NotFound("project", c.ProjectID)
	}
	if _, taken := tx.state.tokens[c.TokenID]; taken {
		return registry.CarbonCredit{}, registry.FieldInvalid("token_id", "already exists")
	}
	tx.state.credits.insert(c.ID, c)
	tx.state.tokens[c.TokenID] = c.ID
	return c.Clone(), nil
}

func (tx *transaction) UpdateCredit(id string, mutator func(*registry.CarbonCredit) error) (registry.CarbonCredit, error) {
	current, ok := tx.state.credits.get(id)
	if !ok {
		return registry.CarbonCredit{}, registry.NotFound("credit", id)
	}
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return registry.CarbonCredit{}, err
	}
	if current.Status == registry.CreditStatusRetired {
		if !reflect.DeepEqual(current, next) {
			return registry.CarbonCredit{}, registry.InvalidState("credit %s is retired and can no longer change", id)
		}
		return next, nil
	}
	switch {
	case next.ID != current.ID:
		return registry.CarbonCredit{}, registry.FieldInvalid("id", "is immutable")
	case next.ProjectID != current.ProjectID:
		return registry.CarbonCredit{}, registry.FieldInvalid("project_id", "is immutable")
	case next.TokenID != current.TokenID:
		return registry.CarbonCredit{}, registry.FieldInvalid("token_id", "is immutable")
	case !next.MintedAt.Equal(current.MintedAt):
		return registry.CarbonCredit{}, registry.FieldInvalid("minted_at", "is immutable")
	}
	if err := registry.ValidateCredit(next); err != nil {
		return registry.CarbonCredit{}, err
	}
	tx.state.credits.insert(id, next)
	return next.Clone(), nil
}

// =====================================================
// Transactions
// =====================================================

func (tx *transaction) CreateTransaction(t registry.Transaction) (registry.Transaction, error) {
	t = t.Clone()
	t.ID = newID()
	t.CreatedAt = tx.now
	if t.BlockchainNetwork == "" {
		t.BlockchainNetwork = tx.simulator.Network()
	}
	if t.TxHash == "" {
		t.TxHash = tx.simulator.TxHash(t.ID, t.CreditID, string(t.Type), strconv.FormatInt(tx.now.UnixNano(), 10))
	}
	if err := registry.ValidateTransaction(t); err != nil {
		return registry.Transaction{}, err
	}
	if _, ok := tx.state.credits.get(t.CreditID); !ok {
		return registry.Transaction{}, registry.NotFound("credit", t.CreditID)
	}
	tx.state.transactions.insert(t.ID, t)
	return t.Clone(), nil
}

// =====================================================
// Sensor readings
// =====================================================

func (tx *transaction) CreateSensorReading(r registry.SensorReading) (registry.SensorReading, error) {
	r = r.Clone()
	r.ID = newID()
	r.Timestamp = tx.now
	if err := registry.ValidateSensorReading(r); err != nil {
		return registry.SensorReading{}, err
	}
	if _, ok := tx.state.projects.get(r.ProjectID); !ok {
		return registry.SensorReading{}, registry.NotFound("project", r.ProjectID)
	}
	tx.state.readings.insert(r.ID, r)
	return r.Clone(), nil
}

// =====================================================
// Users
// =====================================================

func (tx *transaction) CreateUser(u registry.User) (registry.User, error) {
	u = u.Clone()
	u.ID = newID()
	u.CreatedAt = tx.now
	if u.Role == "" {
		u.Role = registry.UserRoleUser
	}
	if err := registry.ValidateUser(u); err != nil {
		return registry.User{}, err
	}
	key := usernameKey(u.Username)
	if _, taken := tx.state.usernames[key]; taken {
		return registry.User{}, registry.FieldInvalid("username", "already exists")
	}
	tx.state.users.insert(u.ID, u)
	tx.state.usernames[key] = u.ID
	return u.Clone(), nil
}

func (tx *transaction) UpdateUser(id string, mutator func(*registry.User) error) (registry.User, error) {
	current, ok := tx.state.users.get(id)
	if !ok {
		return registry.User{}, registry.NotFound("user", id)
	}
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return registry.User{}, err
	}
	switch {
	case next.ID != current.ID:
		return registry.User{}, registry.FieldInvalid("id", "is immutable")
	case next.Username != current.Username:
		return registry.User{}, registry.FieldInvalid("username", "is immutable")
	case !next.CreatedAt.Equal(current.CreatedAt):
		return registry.User{}, registry.FieldInvalid("created_at", "is immutable")
	}
	if err := registry.ValidateUser(next); err != nil {
		return registry.User{}, err
	}
	tx.state.users.insert(id, next)
	return next.Clone(), nil
}
