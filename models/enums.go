package models

import "errors"

// MatchStatus is the reconciliation outcome of a detection against the
// component library. It is a closed set; the transition rules live in
// matcher.go and detection.go, not in the callers.
type MatchStatus string

const (
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusReview   MatchStatus = "review"
	MatchStatusNew      MatchStatus = "new"
	MatchStatusRejected MatchStatus = "rejected"
)

func ParseMatchStatus(s string) (MatchStatus, error) {
	switch s {
	case "matched":
		return MatchStatusMatched, nil
	case "review":
		return MatchStatusReview, nil
	case "new":
		return MatchStatusNew, nil
	case "rejected":
		return MatchStatusRejected, nil
	default:
		return "", errors.New("invalid match status")
	}
}

type MatchMethod string

const (
	MatchMethodAuto   MatchMethod = "auto"
	MatchMethodManual MatchMethod = "manual"
)

type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusImported  ProjectStatus = "imported"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch s {
	case "draft":
		return ProjectStatusDraft, nil
	case "active":
		return ProjectStatusActive, nil
	case "imported":
		return ProjectStatusImported, nil
	case "completed":
		return ProjectStatusCompleted, nil
	case "archived":
		return ProjectStatusArchived, nil
	default:
		return "", errors.New("invalid project status")
	}
}

// ConfidenceLevel is the extraction process's own confidence in a detection,
// carried through for review filtering. Distinct from the match score.
type ConfidenceLevel string

const (
	ConfidenceLevelHigh   ConfidenceLevel = "high"
	ConfidenceLevelMedium ConfidenceLevel = "medium"
	ConfidenceLevelLow    ConfidenceLevel = "low"
)

func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	switch s {
	case "high":
		return ConfidenceLevelHigh, nil
	case "medium":
		return ConfidenceLevelMedium, nil
	case "low":
		return ConfidenceLevelLow, nil
	default:
		return "", errors.New("invalid confidence level")
	}
}

type ComponentSource string

const (
	ComponentSourceManual   ComponentSource = "manual"
	ComponentSourceImported ComponentSource = "imported"
	ComponentSourceDetected ComponentSource = "detected"
)
