package workflow

// Stage is one fixed phase of the fabrication workflow.
type Stage string

const (
	StageQuotation   Stage = "quotation"
	StageMaterial    Stage = "material"
	StageProduction1 Stage = "production1"
	StageProduction2 Stage = "production2"
	StagePainting    Stage = "painting"
	StageDelivery    Stage = "delivery"
	StageCompleted   Stage = "completed"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{
	StageQuotation,
	StageMaterial,
	StageProduction1,
	StageProduction2,
	StagePainting,
	StageDelivery,
	StageCompleted,
}

// IsValid reports whether the stage is part of the workflow.
func (s Stage) IsValid() bool {
	return s.index() >= 0
}

// Next returns the fixed successor. Completed has none.
func (s Stage) Next() (Stage, bool) {
	i := s.index()
	if i < 0 || i >= len(Stages)-1 {
		return s, false
	}
	return Stages[i+1], true
}

// Reached reports whether the workflow at s has arrived at or passed target.
func (s Stage) Reached(target Stage) bool {
	i, j := s.index(), target.index()
	return i >= 0 && j >= 0 && i >= j
}

// DisplayName returns the label shown to users.
func (s Stage) DisplayName() string {
	switch s {
	case StageQuotation:
		return "Quotation"
	case StageMaterial:
		return "Material Management"
	case StageProduction1:
		return "Production (Part 1)"
	case StageProduction2:
		return "Production (Part 2)"
	case StagePainting:
		return "Painting & Polishing"
	case StageDelivery:
		return "Delivery Planning"
	case StageCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Progress returns the completion percentage associated with the stage.
func (s Stage) Progress() int {
	switch s {
	case StageQuotation:
		return 10
	case StageMaterial:
		return 30
	case StageProduction1:
		return 45
	case StageProduction2:
		return 60
	case StagePainting:
		return 75
	case StageDelivery:
		return 90
	case StageCompleted:
		return 100
	default:
		return 0
	}
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Status is the coarse lifecycle label derived from stage progression.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}
