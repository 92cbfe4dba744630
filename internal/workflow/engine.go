package workflow

import (
	"fmt"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// CanAdvance reports whether the current stage's exit condition holds.
func CanAdvance(o Order) bool {
	return blocker(o) == ""
}

// blocker describes what the current stage is still waiting for, or "" when
// the order may advance.
func blocker(o Order) string {
	switch o.Stage {
	case StageQuotation:
		if o.Quotation == nil || o.Quotation.Approved != Approved {
			return "waiting for quotation approval"
		}
	case StageMaterial:
		if !o.Material.Complete() {
			return "material estimation, purchase bill, loading and arrival are required"
		}
	case StageProduction1:
		if o.Production1 == nil || o.Production1.DesignApproved != Approved {
			return "waiting for design approval"
		}
	case StageProduction2:
		if o.Production2 == nil || o.Production2.InspectionNeeded != Rejected {
			return "waiting for client to decline production inspection"
		}
	case StagePainting:
		if o.Painting == nil || o.Painting.InspectionNeeded != Rejected {
			return "waiting for client to decline painting inspection"
		}
	case StageDelivery:
		if o.Delivery == nil || o.Delivery.Successful != Approved {
			return "waiting for client to confirm delivery"
		}
	case StageCompleted:
		return "order already completed"
	default:
		return fmt.Sprintf("unknown stage %q", o.Stage)
	}
	return ""
}

// Advance moves the order exactly one stage forward when permitted.
func Advance(o Order) (Order, error) {
	if reason := blocker(o); reason != "" {
		return o, fmt.Errorf("%w: %s", shared.ErrPreconditionNotMet, reason)
	}
	next, ok := o.Stage.Next()
	if !ok {
		return o, fmt.Errorf("%w: no stage after %s", shared.ErrPreconditionNotMet, o.Stage)
	}
	out := o.Clone()
	out.Stage = next
	if next == StageCompleted {
		out.Status = StatusCompleted
	} else {
		out.Status = StatusInProgress
	}
	return out, nil
}

// DecisionRequest is a client answer on the current stage. Override marks the
// administrator answering on the client's behalf.
type DecisionRequest struct {
	Kind     DecisionKind
	Value    bool
	Override bool
}

// Outcome reports what a decision did to the order.
type Outcome struct {
	Kind     DecisionKind
	Decision Decision
	Override bool
	Advanced bool
	From     Stage
	To       Stage
}

// ApplyDecision records the answer on the current stage block and advances the
// stage when the answer is the affirmative-to-proceed one for that kind.
func ApplyDecision(o Order, req DecisionRequest) (Order, Outcome, error) {
	outcome := Outcome{
		Kind:     req.Kind,
		Decision: DecisionOf(req.Value),
		Override: req.Override,
		From:     o.Stage,
		To:       o.Stage,
	}
	stage := req.Kind.Stage()
	if stage == "" {
		return o, outcome, fmt.Errorf("%w: unknown decision %q", shared.ErrValidation, req.Kind)
	}
	if o.Stage != stage {
		return o, outcome, fmt.Errorf("%w: %s can only be decided during %s, order is in %s",
			shared.ErrPreconditionNotMet, req.Kind.Label(), stage.DisplayName(), o.Stage.DisplayName())
	}

	if reason := decisionBlocker(o, req.Kind); reason != "" {
		return o, outcome, fmt.Errorf("%w: %s", shared.ErrPreconditionNotMet, reason)
	}

	out := o.Clone()
	d := outcome.Decision
	switch req.Kind {
	case KindApproveQuotation:
		if out.Quotation == nil {
			out.Quotation = &QuotationBlock{}
		}
		out.Quotation.Approved = d
	case KindApproveDesign:
		if out.Production1 == nil {
			out.Production1 = &Production1Block{}
		}
		out.Production1.DesignApproved = d
	case KindRequestInspection:
		if out.Production2 == nil {
			out.Production2 = &Production2Block{}
		}
		out.Production2.InspectionNeeded = d
	case KindRequestPaintingInspection:
		if out.Painting == nil {
			out.Painting = &PaintingBlock{}
		}
		out.Painting.InspectionNeeded = d
	case KindConfirmDeliveryDate:
		out.Delivery.Confirmed = d
	case KindConfirmDelivery:
		out.Delivery.Successful = d
	}

	if proceed, ok := req.Kind.AdvancesOn(); ok && proceed == req.Value {
		advanced, err := Advance(out)
		if err != nil {
			return o, outcome, err
		}
		out = advanced
		outcome.Advanced = true
		outcome.To = out.Stage
	}
	return out, outcome, nil
}

// decisionBlocker describes the admin input a decision is still waiting for,
// or "" when the client may answer. Overrides are held to the same rule.
func decisionBlocker(o Order, kind DecisionKind) string {
	switch kind {
	case KindApproveQuotation:
		if o.Quotation == nil || o.Quotation.Link == "" {
			return "no quotation has been sent"
		}
	case KindApproveDesign:
		if o.Production1 == nil || o.Production1.Design == "" {
			return "no design has been submitted"
		}
	case KindRequestInspection:
		if o.Production2 == nil || o.Production2.FullWelding == "" || o.Production2.SurfaceFinishing == "" {
			return "full welding and surface finishing are not recorded yet"
		}
	case KindRequestPaintingInspection:
		if o.Painting == nil || o.Painting.Primer == "" || o.Painting.Painting == "" {
			return "primer and painting are not recorded yet"
		}
	case KindConfirmDeliveryDate:
		if o.Delivery == nil || o.Delivery.Date == "" {
			return "no delivery date has been proposed"
		}
	case KindConfirmDelivery:
		d := o.Delivery
		if d == nil || d.Confirmed != Approved {
			return "delivery date not confirmed"
		}
		if d.Loading == "" || d.VehicleNumber == "" || d.DriverNumber == "" {
			return "loading, vehicle and driver are not recorded yet"
		}
	}
	return ""
}
