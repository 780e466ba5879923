package reports

import (
	"context"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

type DetectionStatusRow struct {
	DetectionID     int             `json:"detection_id"`
	RawText         string          `json:"raw_text"`
	ItClass         string          `json:"it_class"`
	Quantity        decimal.Decimal `json:"quantity"`
	PageNumber      int             `json:"page_number"`
	GridLocation    string          `json:"grid_location"`
	MatchStatus     string          `json:"match_status"`
	MatchMethod     *string         `json:"match_method"`
	MatchConfidence decimal.Decimal `json:"match_confidence"`
	MatchedItemName string          `json:"matched_item_name"`
	ReviewedBy      string          `json:"reviewed_by"`
	Accepted        bool            `json:"accepted"`
}

type DetectionStatusReportResponse struct {
	Summary *models.DetectionStatusSummary `json:"summary"`
	Rows    []*DetectionStatusRow          `json:"rows"`
}

// GetDetectionStatusReport lists every detection with its classification
// outcome, suggested library entry and review trail, plus the per-status
// summary counts.
func GetDetectionStatusReport(ctx context.Context, projectId int) (*DetectionStatusReportResponse, error) {
	summary, err := models.GetDetectionStatusSummary(ctx, projectId)
	if err != nil {
		return nil, err
	}

	sql := `
SELECT
    dc.id AS detection_id,
    dc.raw_text,
    dc.it_class,
    dc.quantity,
    dc.page_number,
    dc.grid_location,
    dc.match_status,
    dc.match_method,
    dc.match_confidence,
    COALESCE(c.item_name, '') AS matched_item_name,
    dc.reviewed_by,
    dc.accepted_item_id IS NOT NULL AS accepted
FROM
    detected_components dc
    LEFT JOIN components c ON c.id = dc.matched_id
WHERE
    dc.project_id = @projectId
ORDER BY
    dc.id;
`

	var rows []*DetectionStatusRow
	db := config.GetDB()
	err = db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"projectId": projectId,
	}).Scan(&rows).Error
	if err != nil {
		return nil, utils.StoreErr(err)
	}
	return &DetectionStatusReportResponse{Summary: summary, Rows: rows}, nil
}
