package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabtrack/fabtrack/internal/shared"
)

func TestEditBeforeStageReachedFails(t *testing.T) {
	o := New("client@x.com", testNow)
	_, err := EditMaterial(o, MaterialPatch{Estimation: str("1t")}, testNow)
	require.ErrorIs(t, err, shared.ErrPreconditionNotMet)
	_, err = EditDeliveryDate(o, "2024-05-01", testNow)
	require.ErrorIs(t, err, shared.ErrPreconditionNotMet)
	assert.Nil(t, o.Material)
}

func TestEditMergesAndStampsTimestamp(t *testing.T) {
	o := orderAt(t, StageMaterial)
	first, err := EditMaterial(o, MaterialPatch{Estimation: str(" 2t "), Loading: str("dock")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "2t", first.Material.Estimation)

	later := testNow.Add(time.Minute)
	second, err := EditMaterial(first, MaterialPatch{Arrival: str("friday")}, later)
	require.NoError(t, err)
	assert.Equal(t, "2t", second.Material.Estimation)
	assert.Equal(t, "dock", second.Material.Loading)
	assert.Equal(t, "friday", second.Material.Arrival)
	assert.True(t, second.Material.Timestamp.After(first.Material.Timestamp))
	assert.Equal(t, testNow, first.Material.Timestamp, "input must stay untouched")
}

func TestEditQuotationResetsApprovalWhileInQuotation(t *testing.T) {
	o := New("client@x.com", testNow)
	o, err := EditQuotation(o, "https://docs/q1", testNow)
	require.NoError(t, err)
	o, _, err = ApplyDecision(o, DecisionRequest{Kind: KindApproveQuotation, Value: false})
	require.NoError(t, err)
	assert.Equal(t, Rejected, o.Quotation.Approved)

	o, err = EditQuotation(o, "https://docs/q2", testNow)
	require.NoError(t, err)
	assert.Equal(t, Unset, o.Quotation.Approved)

	_, err = EditQuotation(o, "  ", testNow)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEditQuotationAfterApprovalKeepsStage(t *testing.T) {
	o := orderAt(t, StageMaterial)
	o, err := EditQuotation(o, "https://docs/q-final", testNow)
	require.NoError(t, err)
	assert.Equal(t, StageMaterial, o.Stage)
	assert.Equal(t, Approved, o.Quotation.Approved)
}

func TestEditNeverChangesStage(t *testing.T) {
	o := orderAt(t, StageProduction1)
	o, err := EditProduction1(o, Production1Patch{Marking: str("done"), Cutting: str("done")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, StageProduction1, o.Stage)
}

func TestNewDesignClearsRejection(t *testing.T) {
	o, err := EditProduction1(orderAt(t, StageProduction1), Production1Patch{Design: str("designs/a.pdf")}, testNow)
	require.NoError(t, err)
	o, _, err = ApplyDecision(o, DecisionRequest{Kind: KindApproveDesign, Value: false})
	require.NoError(t, err)
	o, err = EditProduction1(o, Production1Patch{Design: str("designs/b.pdf")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, Unset, o.Production1.DesignApproved)
}

func TestDeliveryDetailsRequireConfirmedDate(t *testing.T) {
	o := orderAt(t, StageDelivery)
	o, err := EditDeliveryDate(o, "2024-04-02", testNow)
	require.NoError(t, err)

	_, err = EditDeliveryDetails(o, DeliveryDetailsPatch{VehicleNumber: str("B 1234 XY")}, testNow)
	require.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	o, _, err = ApplyDecision(o, DecisionRequest{Kind: KindConfirmDeliveryDate, Value: true})
	require.NoError(t, err)
	o, err = EditDeliveryDetails(o, DeliveryDetailsPatch{VehicleNumber: str("B 1234 XY"), DriverNumber: str("0812")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "B 1234 XY", o.Delivery.VehicleNumber)

	o, err = EditDeliveryDate(o, "2024-04-09", testNow)
	require.NoError(t, err)
	assert.Equal(t, Unset, o.Delivery.Confirmed)
}
