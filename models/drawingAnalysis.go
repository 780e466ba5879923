package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DrawingAnalysis groups the detections produced by one analysis run of a
// drawing set. BatchID ties the imported rows back to their source run.
type DrawingAnalysis struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProjectID     int       `gorm:"not null;index" json:"project_id"`
	BatchID       string    `gorm:"size:64;not null;uniqueIndex" json:"batch_id"`
	SourceDrawing string    `gorm:"size:255" json:"source_drawing"`
	PageCount     int       `gorm:"default:0" json:"page_count"`
	DetectedCount int       `gorm:"default:0" json:"detected_count"`
	AnalyzedBy    string    `gorm:"size:100" json:"analyzed_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`

	Detections []DetectedComponent `gorm:"foreignKey:AnalysisID" json:"detections,omitempty"`
}

// batchIdFromContextOrNew reuses the request correlation id as the batch id
// so imported rows can be traced back to the originating request, and mints
// a fresh uuid for callers without one (cli tools, tests).
func batchIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func newAnalysisBatch(ctx context.Context, tx *gorm.DB, projectId int, sourceDrawing string, pageCount int) (*DrawingAnalysis, error) {
	analyzedBy, _ := utils.GetUserNameFromContext(ctx)
	analysis := DrawingAnalysis{
		ProjectID:     projectId,
		BatchID:       batchIdFromContextOrNew(ctx),
		SourceDrawing: sourceDrawing,
		PageCount:     pageCount,
		AnalyzedBy:    analyzedBy,
	}
	if err := tx.Create(&analysis).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return &analysis, nil
}

func GetDrawingAnalysis(ctx context.Context, id int) (*DrawingAnalysis, error) {
	return utils.FetchModel[DrawingAnalysis](ctx, id, "Detections")
}

func GetProjectAnalyses(ctx context.Context, projectId int) ([]*DrawingAnalysis, error) {
	return utils.FetchModelsWhere[DrawingAnalysis](ctx, "project_id = ?", projectId)
}
