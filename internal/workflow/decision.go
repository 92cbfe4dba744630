package workflow

import "fmt"

// Decision is a tri-state client sign-off.
type Decision int

const (
	// Unset means no decision has been taken yet.
	Unset Decision = iota
	// Approved means the party said yes.
	Approved
	// Rejected means the party said no.
	Rejected
)

// DecisionOf converts a yes/no answer into a Decision.
func DecisionOf(value bool) Decision {
	if value {
		return Approved
	}
	return Rejected
}

// Bool returns the boolean view of the decision and whether it is set.
func (d Decision) Bool() (value bool, ok bool) {
	switch d {
	case Approved:
		return true, true
	case Rejected:
		return false, true
	default:
		return false, false
	}
}

func (d Decision) String() string {
	switch d {
	case Unset:
		return "unset"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// DecisionKind names a client-side gate on the current stage block.
type DecisionKind string

const (
	KindApproveQuotation          DecisionKind = "approve-quotation"
	KindApproveDesign             DecisionKind = "approve-design"
	KindRequestInspection         DecisionKind = "request-inspection"
	KindRequestPaintingInspection DecisionKind = "request-painting-inspection"
	KindConfirmDeliveryDate       DecisionKind = "confirm-delivery-date"
	KindConfirmDelivery           DecisionKind = "confirm-delivery"
)

// DecisionKinds lists every supported kind.
var DecisionKinds = []DecisionKind{
	KindApproveQuotation,
	KindApproveDesign,
	KindRequestInspection,
	KindRequestPaintingInspection,
	KindConfirmDeliveryDate,
	KindConfirmDelivery,
}

// ParseDecisionKind validates a kind received from a caller.
func ParseDecisionKind(raw string) (DecisionKind, bool) {
	for _, k := range DecisionKinds {
		if string(k) == raw {
			return k, true
		}
	}
	return "", false
}

// Stage returns the stage in which the decision may be taken.
func (k DecisionKind) Stage() Stage {
	switch k {
	case KindApproveQuotation:
		return StageQuotation
	case KindApproveDesign:
		return StageProduction1
	case KindRequestInspection:
		return StageProduction2
	case KindRequestPaintingInspection:
		return StagePainting
	case KindConfirmDeliveryDate, KindConfirmDelivery:
		return StageDelivery
	default:
		return ""
	}
}

// AdvancesOn returns the answer that moves the order to the next stage.
// ok is false for kinds that never auto-advance.
func (k DecisionKind) AdvancesOn() (value bool, ok bool) {
	switch k {
	case KindApproveQuotation, KindApproveDesign:
		return true, true
	case KindRequestInspection, KindRequestPaintingInspection:
		return false, true
	default:
		return false, false
	}
}

// Label is a short human description used in notifications.
func (k DecisionKind) Label() string {
	switch k {
	case KindApproveQuotation:
		return "Quotation"
	case KindApproveDesign:
		return "Design"
	case KindRequestInspection:
		return "Production inspection"
	case KindRequestPaintingInspection:
		return "Painting inspection"
	case KindConfirmDeliveryDate:
		return "Delivery date"
	case KindConfirmDelivery:
		return "Delivery"
	default:
		return string(k)
	}
}

// MarshalJSON encodes Unset as null and the others as booleans.
func (d Decision) MarshalJSON() ([]byte, error) {
	switch d {
	case Approved:
		return []byte("true"), nil
	case Rejected:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, true or false.
func (d *Decision) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*d = Unset
	case "true":
		*d = Approved
	case "false":
		*d = Rejected
	default:
		return fmt.Errorf("workflow: invalid decision %s", data)
	}
	return nil
}
