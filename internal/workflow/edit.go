package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// MaterialPatch lists admin-supplied material fields. Nil keeps the stored value.
type MaterialPatch struct {
	Estimation   *string `json:"estimation"`
	PurchaseBill *string `json:"purchaseBill"`
	Loading      *string `json:"loading"`
	Arrival      *string `json:"arrival"`
}

// Production1Patch lists admin-supplied production (part 1) fields.
type Production1Patch struct {
	Marking         *string `json:"marking"`
	Cutting         *string `json:"cutting"`
	EdgePreparation *string `json:"edgePreparation"`
	JointWelding    *string `json:"jointWelding"`
	Design          *string `json:"design"`
}

// Production2Patch lists admin-supplied production (part 2) fields.
type Production2Patch struct {
	FullWelding      *string `json:"fullWelding"`
	SurfaceFinishing *string `json:"surfaceFinishing"`
}

// PaintingPatch lists admin-supplied painting fields.
type PaintingPatch struct {
	Primer   *string `json:"primer"`
	Painting *string `json:"painting"`
}

// DeliveryDetailsPatch lists the logistics entered once the date is agreed.
type DeliveryDetailsPatch struct {
	Loading       *string `json:"loading"`
	VehicleNumber *string `json:"vehicleNumber"`
	DriverNumber  *string `json:"driverNumber"`
}

func requireReached(o Order, stage Stage) error {
	if !o.Stage.Reached(stage) {
		return fmt.Errorf("%w: %s cannot be edited before the order reaches it (currently %s)",
			shared.ErrPreconditionNotMet, stage.DisplayName(), o.Stage.DisplayName())
	}
	return nil
}

func merge(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// EditQuotation stores the quotation link. Re-sending while the order still
// sits in Quotation clears any earlier client answer.
func EditQuotation(o Order, link string, now time.Time) (Order, error) {
	if err := requireReached(o, StageQuotation); err != nil {
		return o, err
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return o, fmt.Errorf("%w: quotation link is required", shared.ErrValidation)
	}
	out := o.Clone()
	if out.Quotation == nil {
		out.Quotation = &QuotationBlock{}
	}
	out.Quotation.Link = link
	if out.Stage == StageQuotation {
		out.Quotation.Approved = Unset
	}
	out.Quotation.Timestamp = now.UTC()
	return out, nil
}

// EditMaterial merges material fields.
func EditMaterial(o Order, p MaterialPatch, now time.Time) (Order, error) {
	if err := requireReached(o, StageMaterial); err != nil {
		return o, err
	}
	out := o.Clone()
	if out.Material == nil {
		out.Material = &MaterialBlock{}
	}
	merge(&out.Material.Estimation, p.Estimation)
	merge(&out.Material.PurchaseBill, p.PurchaseBill)
	merge(&out.Material.Loading, p.Loading)
	merge(&out.Material.Arrival, p.Arrival)
	out.Material.Timestamp = now.UTC()
	return out, nil
}

// EditProduction1 merges production (part 1) fields. Replacing the design
// clears the client's earlier answer on it.
func EditProduction1(o Order, p Production1Patch, now time.Time) (Order, error) {
	if err := requireReached(o, StageProduction1); err != nil {
		return o, err
	}
	out := o.Clone()
	if out.Production1 == nil {
		out.Production1 = &Production1Block{}
	}
	previous := out.Production1.Design
	merge(&out.Production1.Marking, p.Marking)
	merge(&out.Production1.Cutting, p.Cutting)
	merge(&out.Production1.EdgePreparation, p.EdgePreparation)
	merge(&out.Production1.JointWelding, p.JointWelding)
	merge(&out.Production1.Design, p.Design)
	if out.Stage == StageProduction1 && out.Production1.Design != previous {
		out.Production1.DesignApproved = Unset
	}
	out.Production1.Timestamp = now.UTC()
	return out, nil
}

// EditProduction2 merges production (part 2) fields.
func EditProduction2(o Order, p Production2Patch, now time.Time) (Order, error) {
	if err := requireReached(o, StageProduction2); err != nil {
		return o, err
	}
	out := o.Clone()
	if out.Production2 == nil {
		out.Production2 = &Production2Block{}
	}
	merge(&out.Production2.FullWelding, p.FullWelding)
	merge(&out.Production2.SurfaceFinishing, p.SurfaceFinishing)
	out.Production2.Timestamp = now.UTC()
	return out, nil
}

// EditPainting merges painting fields.
func EditPainting(o Order, p PaintingPatch, now time.Time) (Order, error) {
	if err := requireReached(o, StagePainting); err != nil {
		return o, err
	}
	out := o.Clone()
	if out.Painting == nil {
		out.Painting = &PaintingBlock{}
	}
	merge(&out.Painting.Primer, p.Primer)
	merge(&out.Painting.Painting, p.Painting)
	out.Painting.Timestamp = now.UTC()
	return out, nil
}

// EditDeliveryDate proposes a delivery date. A changed date needs a fresh
// confirmation from the client.
func EditDeliveryDate(o Order, date string, now time.Time) (Order, error) {
	if err := requireReached(o, StageDelivery); err != nil {
		return o, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return o, fmt.Errorf("%w: delivery date is required", shared.ErrValidation)
	}
	out := o.Clone()
	if out.Delivery == nil {
		out.Delivery = &DeliveryBlock{}
	}
	if out.Delivery.Date != date {
		out.Delivery.Confirmed = Unset
	}
	out.Delivery.Date = date
	out.Delivery.Timestamp = now.UTC()
	return out, nil
}

// CounterProposeDeliveryDate lets a client who declined the proposed date
// name another one. Naming it counts as confirming it.
func CounterProposeDeliveryDate(o Order, date string, now time.Time) (Order, error) {
	if o.Stage != StageDelivery {
		return o, fmt.Errorf("%w: delivery dates are agreed during %s, order is in %s",
			shared.ErrPreconditionNotMet, StageDelivery.DisplayName(), o.Stage.DisplayName())
	}
	if o.Delivery == nil || o.Delivery.Confirmed != Rejected {
		return o, fmt.Errorf("%w: a new date can only be suggested after declining the proposed one", shared.ErrPreconditionNotMet)
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return o, fmt.Errorf("%w: delivery date is required", shared.ErrValidation)
	}
	out := o.Clone()
	out.Delivery.Date = date
	out.Delivery.Confirmed = Approved
	out.Delivery.Timestamp = now.UTC()
	return out, nil
}

// EditDeliveryDetails records loading and transport once the date is confirmed.
func EditDeliveryDetails(o Order, p DeliveryDetailsPatch, now time.Time) (Order, error) {
	if err := requireReached(o, StageDelivery); err != nil {
		return o, err
	}
	if o.Delivery == nil || o.Delivery.Confirmed != Approved {
		return o, fmt.Errorf("%w: delivery date not confirmed by client", shared.ErrPreconditionNotMet)
	}
	out := o.Clone()
	merge(&out.Delivery.Loading, p.Loading)
	merge(&out.Delivery.VehicleNumber, p.VehicleNumber)
	merge(&out.Delivery.DriverNumber, p.DriverNumber)
	out.Delivery.Timestamp = now.UTC()
	return out, nil
}
