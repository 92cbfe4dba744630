// Package workflow holds the order entity and the stage-transition rules of
// the fabrication pipeline. It performs no I/O; every operation returns a new
// Order and leaves its input untouched.
package workflow

import "time"

// Order is a fabrication order moving through the fixed stage sequence.
type Order struct {
	ID          string    `json:"id"`
	ClientEmail string    `json:"clientEmail"`
	CreatedAt   time.Time `json:"createdAt"`
	Stage       Stage     `json:"currentStage"`
	Status      Status    `json:"status"`

	Quotation   *QuotationBlock   `json:"quotation,omitempty"`
	Material    *MaterialBlock    `json:"material,omitempty"`
	Production1 *Production1Block `json:"production1,omitempty"`
	Production2 *Production2Block `json:"production2,omitempty"`
	Painting    *PaintingBlock    `json:"painting,omitempty"`
	Delivery    *DeliveryBlock    `json:"delivery,omitempty"`
}

// QuotationBlock carries the priced quotation sent to the client.
type QuotationBlock struct {
	Link      string    `json:"link"`
	Approved  Decision  `json:"approved"`
	Timestamp time.Time `json:"timestamp"`
}

// MaterialBlock tracks procurement of raw material.
type MaterialBlock struct {
	Estimation   string    `json:"estimation"`
	PurchaseBill string    `json:"purchaseBill"`
	Loading      string    `json:"loading"`
	Arrival      string    `json:"arrival"`
	Timestamp    time.Time `json:"timestamp"`
}

// Complete reports whether every material field has been filled in.
func (m *MaterialBlock) Complete() bool {
	return m != nil && m.Estimation != "" && m.PurchaseBill != "" && m.Loading != "" && m.Arrival != ""
}

// Production1Block covers marking through the design deliverable.
type Production1Block struct {
	Marking         string    `json:"marking"`
	Cutting         string    `json:"cutting"`
	EdgePreparation string    `json:"edgePreparation"`
	JointWelding    string    `json:"jointWelding"`
	Design          string    `json:"design"`
	DesignApproved  Decision  `json:"designApproved"`
	Timestamp       time.Time `json:"timestamp"`
}

// Production2Block covers finishing work before painting.
type Production2Block struct {
	FullWelding      string    `json:"fullWelding"`
	SurfaceFinishing string    `json:"surfaceFinishing"`
	InspectionNeeded Decision  `json:"inspectionNeeded"`
	Timestamp        time.Time `json:"timestamp"`
}

// PaintingBlock covers primer and final coat.
type PaintingBlock struct {
	Primer           string    `json:"primer"`
	Painting         string    `json:"painting"`
	InspectionNeeded Decision  `json:"inspectionNeeded"`
	Timestamp        time.Time `json:"timestamp"`
}

// DeliveryBlock tracks scheduling and hand-over.
type DeliveryBlock struct {
	Date          string    `json:"date"`
	Confirmed     Decision  `json:"confirmed"`
	Loading       string    `json:"loading"`
	VehicleNumber string    `json:"vehicleNumber"`
	DriverNumber  string    `json:"driverNumber"`
	Successful    Decision  `json:"successful"`
	Timestamp     time.Time `json:"timestamp"`
}

// New returns a fresh order awaiting its quotation.
func New(clientEmail string, createdAt time.Time) Order {
	return Order{
		ClientEmail: clientEmail,
		CreatedAt:   createdAt.UTC(),
		Stage:       StageQuotation,
		Status:      StatusPending,
	}
}

// Clone returns a deep copy so callers can mutate blocks freely.
func (o Order) Clone() Order {
	out := o
	if o.Quotation != nil {
		b := *o.Quotation
		out.Quotation = &b
	}
	if o.Material != nil {
		b := *o.Material
		out.Material = &b
	}
	if o.Production1 != nil {
		b := *o.Production1
		out.Production1 = &b
	}
	if o.Production2 != nil {
		b := *o.Production2
		out.Production2 = &b
	}
	if o.Painting != nil {
		b := *o.Painting
		out.Painting = &b
	}
	if o.Delivery != nil {
		b := *o.Delivery
		out.Delivery = &b
	}
	return out
}
