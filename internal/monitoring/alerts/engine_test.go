package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/memory"
)

// MockPublisher is a mock implementation of registry.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event registry.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type harness struct {
	svc     registry.Service
	engine  *Engine
	project *registry.Project
	clock   time.Time
}

// newHarness wires the engine behind the registry service the way the
// server does, through the service publisher
func newHarness(t *testing.T, rules []Rule, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	var engine *Engine
	publisher := registry.PublisherFunc(func(ctx context.Context, e registry.Event) error {
		return engine.Publish(ctx, e)
	})
	h.svc = registry.NewService(memory.NewStore(), publisher, nil, zap.NewNop())

	opts = append([]Option{WithClock(func() time.Time { return h.clock })}, opts...)
	engine, err := NewEngine(rules, h.svc, zap.NewNop(), opts...)
	require.NoError(t, err)
	h.engine = engine

	h.project, err = h.svc.RegisterProject(context.Background(), &registry.RegisterProjectRequest{
		Name:        "Kerala Mangrove Conservation",
		ProjectType: registry.ProjectTypeMangrove,
		Area:        250,
		Latitude:    11.0168,
		Longitude:   76.9558,
		Location:    "Kochi, Kerala, India",
		DeveloperID: "developer1",
	})
	require.NoError(t, err)
	return h
}

func (h *harness) record(t *testing.T, sensorType registry.SensorType, value float64) *registry.SensorReading {
	t.Helper()
	r, err := h.svc.RecordSensorReading(context.Background(), &registry.RecordSensorReadingRequest{
		ProjectID:  h.project.ID,
		SensorType: sensorType,
		Value:      &value,
		Unit:       "t/ha",
	})
	require.NoError(t, err)
	return r
}

func TestNewEngineValidatesRules(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		field string
	}{
		{"missing name", Rule{SensorType: registry.SensorTypeCO2, ConditionType: ConditionThreshold}, "name"},
		{"missing sensor type", Rule{Name: "x", ConditionType: ConditionThreshold}, "sensor_type"},
		{"unknown condition", Rule{Name: "x", SensorType: registry.SensorTypeCO2, ConditionType: "anomaly"}, "condition_type"},
		{"unknown operator", Rule{Name: "x", SensorType: registry.SensorTypeCO2, ConditionType: ConditionThreshold, Operator: "near"}, "operator"},
		{"zero rate", Rule{Name: "x", SensorType: registry.SensorTypeCO2, ConditionType: ConditionRateOfChange}, "max_rate_percent"},
		{"negative cooldown", Rule{Name: "x", SensorType: registry.SensorTypeCO2, ConditionType: ConditionThreshold, CooldownMinutes: -1}, "cooldown_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine([]Rule{tt.rule}, nil, zap.NewNop())
			require.ErrorIs(t, err, registry.ErrValidation)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	engine, err := NewEngine([]Rule{{Name: "x", SensorType: registry.SensorTypeCO2, ConditionType: ConditionThreshold}}, nil, zap.NewNop())
	require.NoError(t, err)
	rule := engine.Rules()[0]
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, OperatorGreaterThan, rule.Operator)
	assert.Equal(t, SeverityWarning, rule.Severity)
}

func TestDefaultRulesAreValid(t *testing.T) {
	_, err := NewEngine(DefaultRules(), nil, zap.NewNop())
	assert.NoError(t, err)
}

func TestThresholdRuleFiresOnRecordedReading(t *testing.T) {
	h := newHarness(t, DefaultRules())

	h.record(t, registry.SensorTypeCO2, 2.3)
	assert.Empty(t, h.engine.Alerts(Filter{}))

	reading := h.record(t, registry.SensorTypeCO2, 0.4)
	alerts := h.engine.Alerts(Filter{})
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "low-sequestration", a.RuleID)
	assert.Equal(t, h.project.ID, a.ProjectID)
	assert.Equal(t, reading.ID, a.ReadingID)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, SeverityWarning, a.Severity)
	assert.Equal(t, 0.4, a.Details["current_value"])
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	h := newHarness(t, DefaultRules())

	h.record(t, registry.SensorTypeCO2, 0.4)
	h.record(t, registry.SensorTypeCO2, 0.3)
	assert.Len(t, h.engine.Alerts(Filter{}), 1)

	h.clock = h.clock.Add(61 * time.Minute)
	h.record(t, registry.SensorTypeCO2, 0.2)
	assert.Len(t, h.engine.Alerts(Filter{}), 2)
}

func TestConcurrentReadingsRespectCooldown(t *testing.T) {
	h := newHarness(t, DefaultRules())

	const workers = 16
	var wg sync.WaitGroup
	raised := make([]int, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alerts, err := h.engine.Evaluate(context.Background(), registry.SensorReading{
				ID:         fmt.Sprintf("reading-%d", i),
				ProjectID:  h.project.ID,
				SensorType: registry.SensorTypeCO2,
				Value:      0.4,
			})
			assert.NoError(t, err)
			raised[i] = len(alerts)
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range raised {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Len(t, h.engine.Alerts(Filter{}), 1)
}

func TestRateOfChangeComparesWithPreviousReading(t *testing.T) {
	h := newHarness(t, DefaultRules())

	// first reading has nothing to compare with
	h.record(t, registry.SensorTypeSoilCarbon, 89.2)
	h.record(t, registry.SensorTypeSoilCarbon, 91.0)
	assert.Empty(t, h.engine.Alerts(Filter{}))

	h.record(t, registry.SensorTypeSoilCarbon, 70.0)
	alerts := h.engine.Alerts(Filter{Severity: SeverityCritical})
	require.Len(t, alerts, 1)
	assert.Equal(t, 91.0, alerts[0].Details["previous_value"])
	assert.InDelta(t, -23.08, alerts[0].Details["actual_rate"], 0.01)
}

func TestProjectScopedRule(t *testing.T) {
	rules := []Rule{{
		ID: "scoped", Name: "Scoped", ProjectID: "another-project",
		SensorType: registry.SensorTypeBiomass, ConditionType: ConditionThreshold,
		Operator: OperatorLessThan, Threshold: 100,
	}}
	h := newHarness(t, rules)

	h.record(t, registry.SensorTypeBiomass, 10)
	assert.Empty(t, h.engine.Alerts(Filter{}))
}

func TestAlertsAreForwardedToSink(t *testing.T) {
	sink := new(MockPublisher)
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(e registry.Event) bool {
		return e.Type == EventAlertTriggered && e.Data["severity"] == SeverityWarning
	})).Return(nil).Once()

	h := newHarness(t, DefaultRules(), WithSink(sink))
	h.record(t, registry.SensorTypeBiomass, 12.5)

	sink.AssertExpectations(t)
}

func TestOtherEventsAreIgnored(t *testing.T) {
	engine, err := NewEngine(DefaultRules(), nil, zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, engine.Publish(context.Background(), registry.Event{Type: registry.EventCreditMinted}))
	assert.Error(t, engine.Publish(context.Background(), registry.Event{Type: registry.EventSensorRecorded}))
}

func TestMaxAlertsDropsOldest(t *testing.T) {
	rules := []Rule{{
		ID: "any", Name: "Any biomass", SensorType: registry.SensorTypeBiomass,
		ConditionType: ConditionThreshold, Operator: OperatorGreaterThanOrEqual,
	}}
	h := newHarness(t, rules, WithMaxAlerts(2))

	first := h.record(t, registry.SensorTypeBiomass, 1)
	h.record(t, registry.SensorTypeBiomass, 2)
	h.record(t, registry.SensorTypeBiomass, 3)

	alerts := h.engine.Alerts(Filter{})
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.NotEqual(t, first.ID, a.ReadingID)
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	h := newHarness(t, DefaultRules())
	h.record(t, registry.SensorTypeCO2, 0.4)
	id := h.engine.Alerts(Filter{})[0].ID

	acked, err := h.engine.Acknowledge(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)

	_, err = h.engine.Acknowledge(id)
	assert.ErrorIs(t, err, registry.ErrInvalidTransition)

	resolved, err := h.engine.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)

	_, err = h.engine.Resolve(id)
	assert.ErrorIs(t, err, registry.ErrInvalidTransition)

	_, err = h.engine.Resolve("missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	assert.Empty(t, h.engine.Alerts(Filter{Status: StatusActive}))
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultRules()))

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Hot water","sensor_type":"weather","condition_type":"threshold","threshold":32}]`), 0o600))
	rules, err = LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, registry.SensorTypeWeather, rules[0].SensorType)
	assert.Equal(t, 32.0, rules[0].Threshold)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t, DefaultRules())
	h.record(t, registry.SensorTypeCO2, 0.4)

	router := gin.New()
	NewHandler(h.engine, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))

	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := serve(http.MethodGet, "/api/v1/alerts?project_id="+h.project.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Alerts []Alert `json:"alerts"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)

	w = serve(http.MethodGet, "/api/v1/alerts/rules")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "soil-carbon-swing")

	id := list.Alerts[0].ID
	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge").Code)
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/v1/alerts/"+id+"/resolve").Code)
	assert.Equal(t, http.StatusNotFound, serve(http.MethodPost, "/api/v1/alerts/missing/resolve").Code)
}
