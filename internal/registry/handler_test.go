package registry_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/memory"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sim := chain.NewSimulator("ethereum", "BCR")
	svc := registry.NewService(memory.NewStore(memory.WithSimulator(sim)), nil, sim, zap.NewNop())

	router := gin.New()
	registry.NewHandler(svc, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlerCreditLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/projects", gin.H{
		"name": "Goa Seagrass Conservation", "project_type": "seagrass", "area": 180,
		"latitude": 15.2993, "longitude": 74.1240, "location": "Goa, India", "developer_id": "developer1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	project := decode[registry.Project](t, w)
	assert.Equal(t, registry.ProjectStatusPending, project.Status)

	w = doJSON(t, router, http.MethodPatch, "/api/v1/projects/"+project.ID+"/status", gin.H{"status": "verified"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, registry.ProjectStatusVerified, decode[registry.Project](t, w).Status)

	w = doJSON(t, router, http.MethodPost, "/api/v1/projects/"+project.ID+"/credits", gin.H{
		"amount": 100, "price_per_credit": 20.0, "owner_id": "ownerA",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	minted := decode[registry.CreditOperationResult](t, w)
	creditID := minted.Credit.ID

	w = doJSON(t, router, http.MethodGet, "/api/v1/credits/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]registry.CarbonCredit](t, w), 1)

	w = doJSON(t, router, http.MethodPost, "/api/v1/credits/"+creditID+"/purchase", gin.H{"buyer_id": "ownerB", "amount": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ownerB", decode[registry.CreditOperationResult](t, w).Credit.OwnerID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/credits/"+creditID+"/retire", gin.H{"retired_by": "ownerB"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/credits/"+creditID+"/retire", gin.H{"retired_by": "ownerB"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, string(registry.CodeInvalidState), body["code"])
	assert.NotEmpty(t, body["error"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/transactions?user_id=ownerB", nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode[[]registry.Transaction](t, w)
	require.Len(t, txs, 2)
	assert.Equal(t, registry.TransactionTypeRetirement, txs[0].Type)

	w = doJSON(t, router, http.MethodGet, "/api/v1/transactions/"+txs[1].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   registry.Code
	}{
		{"unknown project", http.MethodGet, "/api/v1/projects/nope", nil, http.StatusNotFound, registry.CodeNotFound},
		{"unknown credit", http.MethodGet, "/api/v1/credits/nope", nil, http.StatusNotFound, registry.CodeNotFound},
		{"invalid project", http.MethodPost, "/api/v1/projects", gin.H{"name": "x"}, http.StatusBadRequest, registry.CodeValidation},
		{"malformed body", http.MethodPost, "/api/v1/projects", "not an object", http.StatusBadRequest, registry.CodeValidation},
		{"bad radius", http.MethodGet, "/api/v1/projects?radius_km=abc", nil, http.StatusBadRequest, registry.CodeValidation},
		{"unknown sensor project", http.MethodGet, "/api/v1/sensor-data/nope", nil, http.StatusNotFound, registry.CodeNotFound},
		{"malformed wallet body", http.MethodPost, "/api/v1/web3/connect", "not an object", http.StatusBadRequest, registry.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), decode[map[string]any](t, w)["code"])
		})
	}
}

func TestHandlerConnectWalletKeepsOpaqueAddress(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/web3/connect", gin.H{"wallet_address": "xyz"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "xyz", decode[map[string]any](t, w)["wallet_address"])
}

func TestHandlerValidationFields(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/projects", gin.H{
		"name": "Salt Marsh", "project_type": "salt_marsh", "area": -1, "location": "Sundarbans",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Code   string                `json:"code"`
		Fields []registry.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "area", body.Fields[0].Field)
}

func TestHandlerSensorDataAndMarkers(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/projects", gin.H{
		"name": "Kerala Mangrove", "project_type": "mangrove", "area": 250,
		"latitude": 11.0168, "longitude": 76.9558, "location": "Kerala",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	project := decode[registry.Project](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sensor-data", gin.H{
		"project_id": project.ID, "sensor_type": "soil_carbon", "value": 89.2, "unit": "%",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/sensor-data/"+project.ID+"/soil_carbon/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 89.2, decode[registry.SensorReading](t, w).Value)

	w = doJSON(t, router, http.MethodGet, "/api/v1/sensor-data/"+project.ID+"/co2/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/projects/markers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	markers := decode[[]registry.ProjectMarker](t, w)
	require.Len(t, markers, 1)
	assert.Equal(t, "#eab308", markers[0].Color)

	w = doJSON(t, router, http.MethodGet, "/api/v1/projects?lat=11&lng=77&radius_km=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]registry.Project](t, w), 1)
}

func TestHandlerUsersAndWallet(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/users", gin.H{"username": "buyer1", "password": "s3cret-pass"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "s3cret-pass")
	assert.NotContains(t, w.Body.String(), "password")
	user := decode[registry.User](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/v1/web3/connect", gin.H{"user_id": user.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[chain.WalletSession](t, w)
	assert.Equal(t, "ethereum", session.Network)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/"+user.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[registry.User](t, w)
	require.NotNil(t, got.WalletAddress)
	assert.Equal(t, session.Address, *got.WalletAddress)

	w = doJSON(t, router, http.MethodPost, "/api/v1/web3/connect", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
