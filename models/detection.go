package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

// DetectedComponent is one free-text detection coming out of drawing
// analysis, carrying its classification outcome once matched.
type DetectedComponent struct {
	ID         int  `gorm:"primary_key" json:"id"`
	ProjectID  int  `gorm:"not null;index" json:"project_id"`
	AnalysisID *int `gorm:"index" json:"analysis_id"`

	RawText      string          `gorm:"size:500;not null" json:"raw_text" binding:"required"`
	ItClass      string          `gorm:"size:30" json:"it_class"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"quantity"`
	PageNumber   int             `gorm:"default:0" json:"page_number"`
	GridLocation string          `gorm:"size:30" json:"grid_location"`

	// the extraction process's own confidence, supplied with the batch;
	// independent of the library match score
	ConfidenceLevel ConfidenceLevel `gorm:"type:enum('high','medium','low');default:medium" json:"confidence_level"`

	MatchStatus     MatchStatus     `gorm:"type:enum('matched','review','new','rejected');default:new" json:"match_status"`
	MatchMethod     *MatchMethod    `gorm:"type:enum('auto','manual')" json:"match_method"`
	MatchedID       *int            `gorm:"index" json:"matched_id"`
	MatchConfidence decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"match_confidence"`
	ReviewedBy      string          `gorm:"size:100" json:"reviewed_by"`
	ReviewedAt      *time.Time      `json:"reviewed_at"`
	AcceptedItemID  *int            `gorm:"index" json:"accepted_item_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	MatchedComponent *Component `gorm:"foreignKey:MatchedID" json:"matched_component,omitempty"`
}

type NewDetection struct {
	RawText      string           `json:"raw_text" binding:"required"`
	ItClass      string           `json:"it_class"`
	Quantity     *decimal.Decimal `json:"quantity"`
	PageNumber   int              `json:"page_number"`
	GridLocation string           `json:"grid_location"`
	Confidence   string           `json:"confidence"`
}

type DetectionImport struct {
	SourceDrawing string         `json:"source_drawing"`
	PageCount     int            `json:"page_count"`
	Detections    []NewDetection `json:"detections" binding:"required,dive"`
}

// DetectionStatusSummary is the reviewer-facing progress report for one
// project's detections.
type DetectionStatusSummary struct {
	ProjectID      int             `json:"project_id"`
	Total          int             `json:"total"`
	Matched        int             `json:"matched"`
	Review         int             `json:"review"`
	New            int             `json:"new"`
	Rejected       int             `json:"rejected"`
	Accepted       int             `json:"accepted"`
	PendingReview  int             `json:"pending_review"`
	PercentMatched decimal.Decimal `json:"percent_matched"`
}

func (input *NewDetection) validate() error {
	if strings.TrimSpace(input.RawText) == "" {
		return errors.New("detection text is required")
	}
	if input.Quantity != nil && !input.Quantity.IsPositive() {
		return utils.ErrorInvalidQuantity
	}
	if input.ItClass != "" && !config.IsKnownComponentClass(input.ItClass) {
		return errors.New("unknown component class: " + input.ItClass)
	}
	if input.Confidence != "" {
		if _, err := ParseConfidenceLevel(input.Confidence); err != nil {
			return err
		}
	}
	return nil
}

func (input *NewDetection) confidenceLevel() ConfidenceLevel {
	if level, err := ParseConfidenceLevel(input.Confidence); err == nil {
		return level
	}
	return ConfidenceLevelMedium
}

// ImportDetections records one analysis batch and classifies every detection
// against the catalog in a single transaction. A failed classification fails
// the whole import; partially imported batches never land.
func ImportDetections(ctx context.Context, projectId int, input *DetectionImport) (*DrawingAnalysis, error) {
	logger := config.GetLogger()

	if len(input.Detections) == 0 {
		return nil, errors.New("import requires at least one detection")
	}
	for i := range input.Detections {
		if err := input.Detections[i].validate(); err != nil {
			return nil, err
		}
	}
	if err := utils.ValidateResourceId[Project](ctx, projectId); err != nil {
		return nil, err
	}

	catalog, err := loadCatalogByClass(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var analysis *DrawingAnalysis
	err = utils.ProjectLock(ctx, projectId, "models", "ImportDetections", func() error {
		tx := db.WithContext(ctx).Begin()

		analysis, err = newAnalysisBatch(ctx, tx, projectId, input.SourceDrawing, input.PageCount)
		if err != nil {
			tx.Rollback()
			return err
		}

		for i := range input.Detections {
			in := &input.Detections[i]
			detection := DetectedComponent{
				ProjectID:    projectId,
				AnalysisID:   &analysis.ID,
				RawText:      in.RawText,
				ItClass:      in.ItClass,
				Quantity:     utils.DereferencePtr(in.Quantity, decimal.NewFromInt(1)),
				PageNumber:   in.PageNumber,
				GridLocation: in.GridLocation,
			}
			detection.ConfidenceLevel = in.confidenceLevel()
			classifyDetection(&detection, catalog.candidates(in.ItClass))
			if err := tx.Create(&detection).Error; err != nil {
				tx.Rollback()
				return utils.StoreErr(err)
			}
		}

		if err := tx.Model(analysis).Update("DetectedCount", len(input.Detections)).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "ImportDetections", "importing detection batch", map[string]interface{}{"projectId": projectId}, err)
		return nil, err
	}
	analysis.DetectedCount = len(input.Detections)
	return analysis, nil
}

func GetDetection(ctx context.Context, id int) (*DetectedComponent, error) {
	return utils.FetchModel[DetectedComponent](ctx, id, "MatchedComponent")
}

func GetProjectDetections(ctx context.Context, projectId int, status *MatchStatus, confidence *ConfidenceLevel) ([]*DetectedComponent, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("MatchedComponent").Where("project_id = ?", projectId)
	if status != nil {
		dbCtx = dbCtx.Where("match_status = ?", *status)
	}
	if confidence != nil {
		dbCtx = dbCtx.Where("confidence_level = ?", *confidence)
	}
	var results []*DetectedComponent
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return results, nil
}

// summarizeDetections folds detection rows into the status report.
func summarizeDetections(projectId int, detections []*DetectedComponent) *DetectionStatusSummary {
	summary := DetectionStatusSummary{ProjectID: projectId}
	for _, d := range detections {
		summary.Total++
		switch d.MatchStatus {
		case MatchStatusMatched:
			summary.Matched++
		case MatchStatusReview:
			summary.Review++
		case MatchStatusNew:
			summary.New++
		case MatchStatusRejected:
			summary.Rejected++
		}
		if d.AcceptedItemID != nil {
			summary.Accepted++
		}
	}
	summary.PendingReview = summary.Review + summary.New
	if summary.Total > 0 {
		summary.PercentMatched = decimal.NewFromInt(int64(summary.Matched)).
			Div(decimal.NewFromInt(int64(summary.Total))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}
	return &summary
}

func GetDetectionStatusSummary(ctx context.Context, projectId int) (*DetectionStatusSummary, error) {
	if err := utils.ValidateResourceId[Project](ctx, projectId); err != nil {
		return nil, err
	}
	detections, err := utils.FetchModelsWhere[DetectedComponent](ctx, "project_id = ?", projectId)
	if err != nil {
		return nil, err
	}
	return summarizeDetections(projectId, detections), nil
}

func DeleteDetection(ctx context.Context, id int) (*DetectedComponent, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, id)
	if err != nil {
		return nil, err
	}
	if detection.AcceptedItemID != nil {
		return nil, utils.ErrorDetectionAccepted
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(detection).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return detection, nil
}
