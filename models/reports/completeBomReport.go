package reports

import (
	"context"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

type CompleteBomRow struct {
	LineSequence  int              `json:"line_sequence"`
	Description   string           `json:"description"`
	ItClass       string           `json:"it_class"`
	ItemName      string           `json:"item_name"`
	Manufacturer  string           `json:"manufacturer"`
	ModelNumber   string           `json:"model_number"`
	SupplierCode  string           `json:"supplier_code"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	PriceOverride *decimal.Decimal `json:"price_override"`
	MarkupPct     decimal.Decimal  `json:"markup_pct"`
	LaborHours    decimal.Decimal  `json:"labor_hours"`
	LineTotal     decimal.Decimal  `json:"line_total"`
	Notes         string           `json:"notes"`
	FromDetection bool             `json:"from_detection"`
}

// GetCompleteBomReport returns the BOM joined with the component library,
// ordered by line sequence. Free-form lines come through with empty library
// columns.
func GetCompleteBomReport(ctx context.Context, projectId int) ([]*CompleteBomRow, error) {
	if err := utils.ValidateResourceId[models.Project](ctx, projectId); err != nil {
		return nil, err
	}

	sql := `
SELECT
    bi.line_sequence,
    bi.description,
    bi.it_class,
    COALESCE(c.item_name, '') AS item_name,
    COALESCE(c.manufacturer, '') AS manufacturer,
    COALESCE(c.model_number, '') AS model_number,
    COALESCE(c.supplier_code, '') AS supplier_code,
    bi.quantity,
    bi.unit_price,
    bi.price_override,
    bi.markup_pct,
    bi.labor_hours,
    bi.line_total,
    bi.notes,
    bi.source_detection_id IS NOT NULL AS from_detection
FROM
    bom_items bi
    LEFT JOIN components c ON c.id = bi.component_id
WHERE
    bi.project_id = @projectId
ORDER BY
    bi.line_sequence;
`

	var rows []*CompleteBomRow
	db := config.GetDB()
	err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"projectId": projectId,
	}).Scan(&rows).Error
	if err != nil {
		return nil, utils.StoreErr(err)
	}
	return rows, nil
}
