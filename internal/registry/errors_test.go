package registry

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("credit", "c-1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "wrapped: credit c-1 not found", err.Error())

	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
}

func TestCodeHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeInvalidState.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeInvalidTransition.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeInvalidAmount.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeUnknown.HTTPStatus())
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationFailed(
		FieldError{Field: "name", Message: "is required"},
		FieldError{Field: "area", Message: "must be greater than 0"},
	)
	assert.Equal(t, "validation failed: name: is required; area: must be greater than 0", err.Error())
}

func TestValidateStructReportsWireNames(t *testing.T) {
	err := ValidateStruct(Project{ProjectType: "kelp", Status: ProjectStatusPending, Area: 1, Location: "x"})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be one of: mangrove, seagrass, salt_marsh", fields["project_type"])
}

func TestValidateProjectVerifiedAtPairing(t *testing.T) {
	now := time.Now()
	base := Project{Name: "p", ProjectType: ProjectTypeSeagrass, Area: 1, Location: "Goa", Status: ProjectStatusPending}

	assert.NoError(t, ValidateProject(base))

	withStamp := base
	withStamp.VerifiedAt = &now
	assert.ErrorIs(t, ValidateProject(withStamp), ErrValidation)

	verified := base
	verified.Status = ProjectStatusVerified
	assert.ErrorIs(t, ValidateProject(verified), ErrValidation)
	verified.VerifiedAt = &now
	assert.NoError(t, ValidateProject(verified))
}

func TestValidateCreditRetirementPairing(t *testing.T) {
	now := time.Now()
	base := CarbonCredit{ProjectID: "p", TokenID: "t", Amount: 1, Price: 1, OwnerID: "o", Status: CreditStatusAvailable, CO2Amount: 1}
	assert.NoError(t, ValidateCredit(base))

	retired := base
	retired.Status = CreditStatusRetired
	retired.RetiredAt = &now
	assert.ErrorIs(t, ValidateCredit(retired), ErrValidation)

	retired.RetiredBy = StringPtr("")
	assert.ErrorIs(t, ValidateCredit(retired), ErrValidation)

	retired.RetiredBy = StringPtr("o")
	assert.NoError(t, ValidateCredit(retired))
}

func TestValidateTransactionNullability(t *testing.T) {
	base := Transaction{CreditID: "c", Amount: 1, TxHash: "0xabc", BlockchainNetwork: "ethereum"}

	tests := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{"minting", withType(base, TransactionTypeMinting, nil, StringPtr("a"), nil), false},
		{"minting with sender", withType(base, TransactionTypeMinting, StringPtr("a"), StringPtr("b"), nil), true},
		{"minting with price", withType(base, TransactionTypeMinting, nil, StringPtr("a"), FloatPtr(1)), true},
		{"retirement", withType(base, TransactionTypeRetirement, StringPtr("a"), nil, nil), false},
		{"retirement with receiver", withType(base, TransactionTypeRetirement, StringPtr("a"), StringPtr("b"), nil), true},
		{"purchase", withType(base, TransactionTypePurchase, nil, StringPtr("b"), FloatPtr(12.5)), false},
		{"negative price", withType(base, TransactionTypePurchase, nil, StringPtr("b"), FloatPtr(-1)), true},
		{"unknown type", withType(base, "gift", nil, nil, nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransaction(tt.tx)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func withType(t Transaction, typ TransactionType, from, to *string, price *float64) Transaction {
	t.Type = typ
	t.FromUserID = from
	t.ToUserID = to
	t.Price = price
	return t
}

func TestCreditStateMachine(t *testing.T) {
	sm := NewCreditStateMachine()
	assert.True(t, sm.CanTransition(CreditStatusAvailable, CreditStatusAvailable))
	assert.True(t, sm.CanTransition(CreditStatusAvailable, CreditStatusRetired))
	assert.False(t, sm.CanTransition(CreditStatusAvailable, CreditStatusSold))
	assert.False(t, sm.CanTransition(CreditStatusRetired, CreditStatusAvailable))
	assert.True(t, sm.IsTerminal(CreditStatusRetired))
	assert.True(t, sm.IsTerminal(CreditStatusSold))
}

func TestVerifyProjectRequestResolveDecision(t *testing.T) {
	assert.Equal(t, DecisionApprove, VerifyProjectRequest{Decision: DecisionApprove}.ResolveDecision())
	assert.Equal(t, DecisionApprove, VerifyProjectRequest{Status: ProjectStatusVerified}.ResolveDecision())
	assert.Equal(t, DecisionReject, VerifyProjectRequest{Status: ProjectStatusRejected}.ResolveDecision())
	assert.Equal(t, VerificationDecision("pending"), VerifyProjectRequest{Status: ProjectStatusPending}.ResolveDecision())
}
