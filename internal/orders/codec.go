package orders

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

// Document is the flat, key-per-field representation of an order as kept in
// the orders collection. Values are strings, booleans or nil.
type Document map[string]any

// Flat document keys.
const (
	KeyClientEmail = "client_email"
	KeyCreatedAt   = "created_at"
	KeyStage       = "current_stage"
	KeyStatus      = "status"

	KeyQuotationLink      = "quotation_link"
	KeyQuotationApproved  = "quotation_approved"
	KeyQuotationTimestamp = "quotation_timestamp"

	KeyMaterialEstimation   = "material_estimation"
	KeyMaterialPurchaseBill = "material_purchase_bill"
	KeyMaterialLoading      = "material_loading"
	KeyMaterialArrival      = "material_arrival"
	KeyMaterialTimestamp    = "material_timestamp"

	KeyProduction1Marking         = "production1_marking"
	KeyProduction1Cutting         = "production1_cutting"
	KeyProduction1EdgePreparation = "production1_edge_preparation"
	KeyProduction1JointWelding    = "production1_joint_welding"
	KeyProduction1Design          = "production1_design"
	KeyProduction1DesignApproved  = "production1_design_approved"
	KeyProduction1Timestamp       = "production1_timestamp"

	KeyProduction2FullWelding      = "production2_full_welding"
	KeyProduction2SurfaceFinishing = "production2_surface_finishing"
	KeyProduction2InspectionNeeded = "production2_inspection_needed"
	KeyProduction2Timestamp        = "production2_timestamp"

	KeyPaintingPrimer           = "painting_primer"
	KeyPaintingPainting         = "painting_painting"
	KeyPaintingInspectionNeeded = "painting_inspection_needed"
	KeyPaintingTimestamp        = "painting_timestamp"

	KeyDeliveryDate          = "delivery_date"
	KeyDeliveryConfirmed     = "delivery_confirmed"
	KeyDeliveryLoading       = "delivery_loading"
	KeyDeliveryVehicleNumber = "delivery_vehicle_number"
	KeyDeliveryDriverNumber  = "delivery_driver_number"
	KeyDeliverySuccessful    = "delivery_successful"
	KeyDeliveryTimestamp     = "delivery_timestamp"
)

// timeLayout keeps a fixed fraction width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Encode flattens an order. The id lives outside the document.
func Encode(o workflow.Order) Document {
	d := Document{
		KeyClientEmail: o.ClientEmail,
		KeyCreatedAt:   formatTime(o.CreatedAt),
		KeyStage:       string(o.Stage),
		KeyStatus:      string(o.Status),
	}
	if q := o.Quotation; q != nil {
		putString(d, KeyQuotationLink, q.Link)
		putDecision(d, KeyQuotationApproved, q.Approved)
		putTime(d, KeyQuotationTimestamp, q.Timestamp)
	}
	if m := o.Material; m != nil {
		putString(d, KeyMaterialEstimation, m.Estimation)
		putString(d, KeyMaterialPurchaseBill, m.PurchaseBill)
		putString(d, KeyMaterialLoading, m.Loading)
		putString(d, KeyMaterialArrival, m.Arrival)
		putTime(d, KeyMaterialTimestamp, m.Timestamp)
	}
	if p := o.Production1; p != nil {
		putString(d, KeyProduction1Marking, p.Marking)
		putString(d, KeyProduction1Cutting, p.Cutting)
		putString(d, KeyProduction1EdgePreparation, p.EdgePreparation)
		putString(d, KeyProduction1JointWelding, p.JointWelding)
		putString(d, KeyProduction1Design, p.Design)
		putDecision(d, KeyProduction1DesignApproved, p.DesignApproved)
		putTime(d, KeyProduction1Timestamp, p.Timestamp)
	}
	if p := o.Production2; p != nil {
		putString(d, KeyProduction2FullWelding, p.FullWelding)
		putString(d, KeyProduction2SurfaceFinishing, p.SurfaceFinishing)
		putDecision(d, KeyProduction2InspectionNeeded, p.InspectionNeeded)
		putTime(d, KeyProduction2Timestamp, p.Timestamp)
	}
	if p := o.Painting; p != nil {
		putString(d, KeyPaintingPrimer, p.Primer)
		putString(d, KeyPaintingPainting, p.Painting)
		putDecision(d, KeyPaintingInspectionNeeded, p.InspectionNeeded)
		putTime(d, KeyPaintingTimestamp, p.Timestamp)
	}
	if dl := o.Delivery; dl != nil {
		putString(d, KeyDeliveryDate, dl.Date)
		putDecision(d, KeyDeliveryConfirmed, dl.Confirmed)
		putString(d, KeyDeliveryLoading, dl.Loading)
		putString(d, KeyDeliveryVehicleNumber, dl.VehicleNumber)
		putString(d, KeyDeliveryDriverNumber, dl.DriverNumber)
		putDecision(d, KeyDeliverySuccessful, dl.Successful)
		putTime(d, KeyDeliveryTimestamp, dl.Timestamp)
	}
	return d
}

// Decode rebuilds an order from its flat document.
func Decode(id string, d Document) (workflow.Order, error) {
	r := reader{doc: d}
	o := workflow.Order{
		ID:          id,
		ClientEmail: r.str(KeyClientEmail),
		CreatedAt:   r.time(KeyCreatedAt),
		Stage:       workflow.Stage(r.str(KeyStage)),
		Status:      workflow.Status(r.str(KeyStatus)),
	}
	if !o.Stage.IsValid() {
		return workflow.Order{}, fmt.Errorf("%w: order %s has unknown stage %q", shared.ErrBackingService, id, o.Stage)
	}
	if !o.Status.IsValid() {
		return workflow.Order{}, fmt.Errorf("%w: order %s has unknown status %q", shared.ErrBackingService, id, o.Status)
	}

	if r.any(KeyQuotationLink, KeyQuotationApproved, KeyQuotationTimestamp) {
		o.Quotation = &workflow.QuotationBlock{
			Link:      r.str(KeyQuotationLink),
			Approved:  r.decision(KeyQuotationApproved),
			Timestamp: r.time(KeyQuotationTimestamp),
		}
	}
	if r.any(KeyMaterialEstimation, KeyMaterialPurchaseBill, KeyMaterialLoading, KeyMaterialArrival, KeyMaterialTimestamp) {
		o.Material = &workflow.MaterialBlock{
			Estimation:   r.str(KeyMaterialEstimation),
			PurchaseBill: r.str(KeyMaterialPurchaseBill),
			Loading:      r.str(KeyMaterialLoading),
			Arrival:      r.str(KeyMaterialArrival),
			Timestamp:    r.time(KeyMaterialTimestamp),
		}
	}
	if r.any(KeyProduction1Marking, KeyProduction1Cutting, KeyProduction1EdgePreparation, KeyProduction1JointWelding,
		KeyProduction1Design, KeyProduction1DesignApproved, KeyProduction1Timestamp) {
		o.Production1 = &workflow.Production1Block{
			Marking:         r.str(KeyProduction1Marking),
			Cutting:         r.str(KeyProduction1Cutting),
			EdgePreparation: r.str(KeyProduction1EdgePreparation),
			JointWelding:    r.str(KeyProduction1JointWelding),
			Design:          r.str(KeyProduction1Design),
			DesignApproved:  r.decision(KeyProduction1DesignApproved),
			Timestamp:       r.time(KeyProduction1Timestamp),
		}
	}
	if r.any(KeyProduction2FullWelding, KeyProduction2SurfaceFinishing, KeyProduction2InspectionNeeded, KeyProduction2Timestamp) {
		o.Production2 = &workflow.Production2Block{
			FullWelding:      r.str(KeyProduction2FullWelding),
			SurfaceFinishing: r.str(KeyProduction2SurfaceFinishing),
			InspectionNeeded: r.decision(KeyProduction2InspectionNeeded),
			Timestamp:        r.time(KeyProduction2Timestamp),
		}
	}
	if r.any(KeyPaintingPrimer, KeyPaintingPainting, KeyPaintingInspectionNeeded, KeyPaintingTimestamp) {
		o.Painting = &workflow.PaintingBlock{
			Primer:           r.str(KeyPaintingPrimer),
			Painting:         r.str(KeyPaintingPainting),
			InspectionNeeded: r.decision(KeyPaintingInspectionNeeded),
			Timestamp:        r.time(KeyPaintingTimestamp),
		}
	}
	if r.any(KeyDeliveryDate, KeyDeliveryConfirmed, KeyDeliveryLoading, KeyDeliveryVehicleNumber,
		KeyDeliveryDriverNumber, KeyDeliverySuccessful, KeyDeliveryTimestamp) {
		o.Delivery = &workflow.DeliveryBlock{
			Date:          r.str(KeyDeliveryDate),
			Confirmed:     r.decision(KeyDeliveryConfirmed),
			Loading:       r.str(KeyDeliveryLoading),
			VehicleNumber: r.str(KeyDeliveryVehicleNumber),
			DriverNumber:  r.str(KeyDeliveryDriverNumber),
			Successful:    r.decision(KeyDeliverySuccessful),
			Timestamp:     r.time(KeyDeliveryTimestamp),
		}
	}
	if r.err != nil {
		return workflow.Order{}, fmt.Errorf("%w: decode order %s: %v", shared.ErrBackingService, id, r.err)
	}
	return o, nil
}

// Diff returns the merge patch turning before into after. Keys dropped in
// after are emitted with a nil value so the store clears them.
func Diff(before, after Document) Document {
	patch := Document{}
	for k, v := range after {
		if old, ok := before[k]; !ok || !reflect.DeepEqual(old, v) {
			patch[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			patch[k] = nil
		}
	}
	return patch
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func putString(d Document, key, value string) {
	if value != "" {
		d[key] = value
	}
}

func putTime(d Document, key string, value time.Time) {
	if !value.IsZero() {
		d[key] = formatTime(value)
	}
}

func putDecision(d Document, key string, value workflow.Decision) {
	if v, ok := value.Bool(); ok {
		d[key] = v
	}
}

type reader struct {
	doc Document
	err error
}

func (r *reader) any(keys ...string) bool {
	for _, k := range keys {
		if v, ok := r.doc[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func (r *reader) str(key string) string {
	switch v := r.doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		r.fail(fmt.Errorf("%s: expected string, got %T", key, v))
		return ""
	}
}

func (r *reader) decision(key string) workflow.Decision {
	switch v := r.doc[key].(type) {
	case nil:
		return workflow.Unset
	case bool:
		return workflow.DecisionOf(v)
	default:
		r.fail(fmt.Errorf("%s: expected bool, got %T", key, v))
		return workflow.Unset
	}
}

func (r *reader) time(key string) time.Time {
	raw := r.str(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", key, err))
		return time.Time{}
	}
	return t.UTC()
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
