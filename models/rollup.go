package models

import (
	"context"

	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectTotals is the rollup of a project's bill of materials. Every total
// is derived from the stored line items alone, so recomputing from the same
// lines always lands on the same numbers.
type ProjectTotals struct {
	TotalLineItems     int             `json:"total_line_items"`
	TotalComponents    decimal.Decimal `json:"total_components"`
	TotalMaterialsCost decimal.Decimal `json:"total_materials_cost"`
	TotalLaborHours    decimal.Decimal `json:"total_labor_hours"`
	TotalLaborCost     decimal.Decimal `json:"total_labor_cost"`
	TotalMarkup        decimal.Decimal `json:"total_markup"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

// ComputeProjectTotals folds BOM lines into project totals.
// TotalComponents sums quantities, not rows: a 4-pole line counts four.
// TotalMarkup is the spread between marked-up line totals and their base
// material cost, and GrandTotal is materials plus labor plus that markup.
func ComputeProjectTotals(items []*BomItem, laborRate decimal.Decimal) ProjectTotals {
	totals := ProjectTotals{
		TotalComponents:    decimal.Zero,
		TotalMaterialsCost: decimal.Zero,
		TotalLaborHours:    decimal.Zero,
		TotalLaborCost:     decimal.Zero,
		TotalMarkup:        decimal.Zero,
		GrandTotal:         decimal.Zero,
	}
	for _, item := range items {
		base := item.baseMaterialCost()
		totals.TotalLineItems++
		totals.TotalComponents = totals.TotalComponents.Add(item.Quantity)
		totals.TotalMaterialsCost = totals.TotalMaterialsCost.Add(base)
		totals.TotalLaborHours = totals.TotalLaborHours.Add(item.LaborHours)
		totals.TotalMarkup = totals.TotalMarkup.Add(item.LineTotal.Sub(base))
	}
	totals.TotalLaborCost = totals.TotalLaborHours.Mul(laborRate)
	totals.GrandTotal = totals.TotalMaterialsCost.Add(totals.TotalLaborCost).Add(totals.TotalMarkup)
	return totals
}

// RecomputeProjectTotals reloads the project's lines inside the caller's
// transaction and writes the cached totals back onto the project row. Callers
// run it in the same transaction as the BOM mutation, so a committed line is
// never visible without its rollup.
func RecomputeProjectTotals(tx *gorm.DB, ctx context.Context, projectId int) (*ProjectTotals, error) {
	var project Project
	if err := tx.First(&project, projectId).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	var items []*BomItem
	if err := tx.Where("project_id = ?", projectId).Find(&items).Error; err != nil {
		return nil, utils.StoreErr(err)
	}

	totals := ComputeProjectTotals(items, project.LaborRate)
	err := tx.Model(&project).Updates(map[string]interface{}{
		"total_line_items":     totals.TotalLineItems,
		"total_components":     totals.TotalComponents,
		"total_materials_cost": totals.TotalMaterialsCost,
		"total_labor_hours":    totals.TotalLaborHours,
		"total_labor_cost":     totals.TotalLaborCost,
		"total_markup":         totals.TotalMarkup,
		"grand_total":          totals.GrandTotal,
	}).Error
	if err != nil {
		return nil, utils.StoreErr(err)
	}
	return &totals, nil
}
