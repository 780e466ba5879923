package reports

import (
	"context"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

type ProjectSummaryResponse struct {
	Project         *models.Project                `json:"project"`
	Totals          models.ProjectTotals           `json:"totals"`
	DetectionStatus *models.DetectionStatusSummary `json:"detection_status"`
	AverageLineCost decimal.Decimal                `json:"average_line_cost"`
}

// GetProjectSummaryReport returns the project header with its cached rollup
// and the detection review progress. Totals come from the cached columns,
// not a live aggregation.
func GetProjectSummaryReport(ctx context.Context, projectId int) (*ProjectSummaryResponse, error) {
	project, err := utils.FetchModel[models.Project](ctx, projectId)
	if err != nil {
		return nil, err
	}
	detectionStatus, err := models.GetDetectionStatusSummary(ctx, projectId)
	if err != nil {
		return nil, err
	}

	response := ProjectSummaryResponse{
		Project:         project,
		DetectionStatus: detectionStatus,
		Totals: models.ProjectTotals{
			TotalLineItems:     project.TotalLineItems,
			TotalComponents:    project.TotalComponents,
			TotalMaterialsCost: project.TotalMaterialsCost,
			TotalLaborHours:    project.TotalLaborHours,
			TotalLaborCost:     project.TotalLaborCost,
			TotalMarkup:        project.TotalMarkup,
			GrandTotal:         project.GrandTotal,
		},
		AverageLineCost: decimal.Zero,
	}
	if project.TotalLineItems > 0 {
		response.AverageLineCost = project.GrandTotal.
			Div(decimal.NewFromInt(int64(project.TotalLineItems))).Round(4)
	}
	return &response, nil
}

type ProjectSummaryRow struct {
	ID              int             `json:"id"`
	ProjectCode     string          `json:"project_code"`
	ProjectName     string          `json:"project_name"`
	ClientName      string          `json:"client_name"`
	Status          string          `json:"status"`
	TotalLineItems  int             `json:"total_line_items"`
	TotalComponents decimal.Decimal `json:"total_components"`
	MaterialsCost   decimal.Decimal `json:"materials_cost"`
	LaborCost       decimal.Decimal `json:"labor_cost"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

// ListProjectSummaries is the dashboard listing: one row per project from the
// cached rollup columns, newest first.
func ListProjectSummaries(ctx context.Context, status string) ([]*ProjectSummaryRow, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&models.Project{}).
		Select("id", "project_code", "project_name", "client_name", "status",
			"total_line_items", "total_components",
			"total_materials_cost AS materials_cost",
			"total_labor_cost AS labor_cost", "grand_total").
		Order("id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rows []*ProjectSummaryRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return rows, nil
}
