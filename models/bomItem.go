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

// BomItem is one line of a project's bill of materials. LineSequence is the
// line number shown to estimators: unique per project, assigned once and
// never reused, so deleting line 3 leaves a gap rather than renumbering.
type BomItem struct {
	ID           int  `gorm:"primary_key" json:"id"`
	ProjectID    int  `gorm:"not null;index:idx_project_line,unique" json:"project_id"`
	LineSequence int  `gorm:"not null;index:idx_project_line,unique" json:"line_sequence"`
	ComponentID  *int `gorm:"index" json:"component_id"`

	Description string          `gorm:"size:500;not null" json:"description"`
	ItClass     string          `gorm:"size:30" json:"it_class"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`

	UnitPrice     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	PriceOverride *decimal.Decimal `gorm:"type:decimal(20,4)" json:"price_override"`
	MarkupPct     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"markup_pct"`
	LaborHours    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"labor_hours"`
	LineTotal     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"line_total"`

	Notes             string `gorm:"type:text" json:"notes"`
	SourceDetectionID *int   `gorm:"uniqueIndex" json:"source_detection_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Component *Component `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
}

type NewBomItem struct {
	ComponentID   *int             `json:"component_id"`
	Description   string           `json:"description"`
	ItClass       string           `json:"it_class"`
	Quantity      decimal.Decimal  `json:"quantity" binding:"required"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	PriceOverride *decimal.Decimal `json:"price_override"`
	// an omitted override keeps the stored one on update; clearing is an
	// explicit request
	ClearPriceOverride bool             `json:"clear_price_override"`
	MarkupPct          *decimal.Decimal `json:"markup_pct"`
	LaborHours         *decimal.Decimal `json:"labor_hours"`
	Notes              string           `json:"notes"`
}

type AcceptDetectionInput struct {
	ComponentID   *int             `json:"component_id"`
	Quantity      *decimal.Decimal `json:"quantity"`
	PriceOverride *decimal.Decimal `json:"price_override"`
	MarkupPct     *decimal.Decimal `json:"markup_pct"`
	LaborHours    *decimal.Decimal `json:"labor_hours"`
	Notes         string           `json:"notes"`
}

// baseMaterialCost is the line's material cost before markup. A price
// override replaces the extended unit price outright, it is not per-unit.
func (item *BomItem) baseMaterialCost() decimal.Decimal {
	if item.PriceOverride != nil {
		return *item.PriceOverride
	}
	return item.UnitPrice.Mul(item.Quantity)
}

func (item *BomItem) computeLineTotal() decimal.Decimal {
	markupFactor := decimal.NewFromInt(1).Add(item.MarkupPct.Div(decimal.NewFromInt(100)))
	return item.baseMaterialCost().Mul(markupFactor)
}

func (input *NewBomItem) validate() error {
	if !input.Quantity.IsPositive() {
		return utils.ErrorInvalidQuantity
	}
	if input.MarkupPct != nil && input.MarkupPct.IsNegative() {
		return utils.ErrorInvalidMarkup
	}
	if input.UnitPrice != nil && input.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	if input.PriceOverride != nil && input.PriceOverride.IsNegative() {
		return errors.New("price override must not be negative")
	}
	if input.ComponentID == nil && strings.TrimSpace(input.Description) == "" {
		return errors.New("a line without a library component needs a description")
	}
	return nil
}

func (input *AcceptDetectionInput) validate() error {
	if input.Quantity != nil && !input.Quantity.IsPositive() {
		return utils.ErrorInvalidQuantity
	}
	if input.MarkupPct != nil && input.MarkupPct.IsNegative() {
		return utils.ErrorInvalidMarkup
	}
	if input.PriceOverride != nil && input.PriceOverride.IsNegative() {
		return errors.New("price override must not be negative")
	}
	if input.LaborHours != nil && input.LaborHours.IsNegative() {
		return errors.New("labor hours must not be negative")
	}
	return nil
}

// lineMarkup picks the markup for a new line: explicit input first, then the
// component's own markup, then the project default.
func lineMarkup(input *decimal.Decimal, component *Component, project *Project) decimal.Decimal {
	if input != nil {
		return *input
	}
	if component != nil && component.MarkupPct.IsPositive() {
		return component.MarkupPct
	}
	return project.DefaultMarkup
}

// AcceptDetection turns a reviewed detection into a BOM line. The detection
// must already be resolved to a library component, either by the classifier
// or by an explicit component in the input; accepting marks the detection so
// it cannot be accepted twice. Line creation, detection update and the
// project rollup commit together.
func AcceptDetection(ctx context.Context, detectionId int, input *AcceptDetectionInput) (*BomItem, error) {
	logger := config.GetLogger()

	if err := input.validate(); err != nil {
		return nil, err
	}

	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	if detection.AcceptedItemID != nil {
		return nil, utils.ErrorDetectionAccepted
	}

	componentId := input.ComponentID
	if componentId == nil {
		componentId = detection.MatchedID
	}
	if componentId == nil {
		return nil, utils.ErrorUnresolvedComponent
	}
	component, err := utils.FetchModel[Component](ctx, *componentId)
	if err != nil {
		return nil, err
	}
	project, err := utils.FetchModel[Project](ctx, detection.ProjectID)
	if err != nil {
		return nil, err
	}

	quantity := utils.DereferencePtr(input.Quantity, detection.Quantity)
	if !quantity.IsPositive() {
		return nil, utils.ErrorInvalidQuantity
	}

	description := component.mostSpecificDesc()
	if description == "" {
		description = component.ItemName
	}

	laborHours := utils.DereferencePtr(input.LaborHours,
		config.LaborEstimateForClass(component.ItClass).Mul(quantity))

	item := BomItem{
		ProjectID:         detection.ProjectID,
		ComponentID:       &component.ID,
		Description:       description,
		ItClass:           component.ItClass,
		Quantity:          quantity,
		UnitPrice:         component.UnitPrice,
		PriceOverride:     input.PriceOverride,
		MarkupPct:         lineMarkup(input.MarkupPct, component, project),
		LaborHours:        laborHours,
		Notes:             input.Notes,
		SourceDetectionID: &detection.ID,
	}
	item.LineTotal = item.computeLineTotal()

	db := config.GetDB()
	err = utils.ProjectLock(ctx, detection.ProjectID, "models", "AcceptDetection", func() error {
		sequence, err := utils.GetLineSequence[BomItem](ctx, detection.ProjectID)
		if err != nil {
			return err
		}
		item.LineSequence = int(sequence)

		tx := db.WithContext(ctx).Begin()

		// The guard above ran before the lock; a concurrent accept may
		// have committed since. Re-check against the current row.
		var current DetectedComponent
		if err := tx.First(&current, detection.ID).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if current.AcceptedItemID != nil {
			tx.Rollback()
			return utils.ErrorDetectionAccepted
		}

		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}

		manual := MatchMethodManual
		detection.AcceptedItemID = &item.ID
		detection.MatchedID = &component.ID
		if detection.MatchStatus != MatchStatusMatched {
			detection.MatchStatus = MatchStatusMatched
			detection.MatchMethod = &manual
			markReviewed(ctx, detection)
		}
		if err := tx.Save(detection).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}

		if _, err := RecomputeProjectTotals(tx, ctx, detection.ProjectID); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "AcceptDetection", "accepting detection", map[string]interface{}{"detectionId": detectionId}, err)
		return nil, err
	}
	return &item, nil
}

// AddManualBomItem creates a line that did not come from a detection, either
// from a library component or free-form.
func AddManualBomItem(ctx context.Context, projectId int, input *NewBomItem) (*BomItem, error) {
	logger := config.GetLogger()

	if err := input.validate(); err != nil {
		return nil, err
	}
	project, err := utils.FetchModel[Project](ctx, projectId)
	if err != nil {
		return nil, err
	}

	var component *Component
	if input.ComponentID != nil {
		component, err = utils.FetchModel[Component](ctx, *input.ComponentID)
		if err != nil {
			return nil, err
		}
	}

	item := BomItem{
		ProjectID:     projectId,
		ComponentID:   input.ComponentID,
		Description:   input.Description,
		ItClass:       input.ItClass,
		Quantity:      input.Quantity,
		PriceOverride: input.PriceOverride,
		MarkupPct:     lineMarkup(input.MarkupPct, component, project),
		Notes:         input.Notes,
	}
	if component != nil {
		if strings.TrimSpace(item.Description) == "" {
			item.Description = component.mostSpecificDesc()
			if item.Description == "" {
				item.Description = component.ItemName
			}
		}
		if item.ItClass == "" {
			item.ItClass = component.ItClass
		}
		item.UnitPrice = component.UnitPrice
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	item.LaborHours = utils.DereferencePtr(input.LaborHours,
		config.LaborEstimateForClass(item.ItClass).Mul(item.Quantity))
	item.LineTotal = item.computeLineTotal()

	db := config.GetDB()
	err = utils.ProjectLock(ctx, projectId, "models", "AddManualBomItem", func() error {
		sequence, err := utils.GetLineSequence[BomItem](ctx, projectId)
		if err != nil {
			return err
		}
		item.LineSequence = int(sequence)

		tx := db.WithContext(ctx).Begin()
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if _, err := RecomputeProjectTotals(tx, ctx, projectId); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "AddManualBomItem", "adding line item", map[string]interface{}{"projectId": projectId}, err)
		return nil, err
	}
	return &item, nil
}

// applyEdits merges an update onto an existing line. Optional fields keep
// their stored value when omitted; PriceOverride is only dropped by an
// explicit ClearPriceOverride.
func (item *BomItem) applyEdits(input *NewBomItem) {
	if strings.TrimSpace(input.Description) != "" {
		item.Description = input.Description
	}
	if input.ItClass != "" {
		item.ItClass = input.ItClass
	}
	item.Quantity = input.Quantity
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.PriceOverride != nil {
		item.PriceOverride = input.PriceOverride
	} else if input.ClearPriceOverride {
		item.PriceOverride = nil
	}
	if input.MarkupPct != nil {
		item.MarkupPct = *input.MarkupPct
	}
	if input.LaborHours != nil {
		item.LaborHours = *input.LaborHours
	}
	item.Notes = input.Notes
	item.LineTotal = item.computeLineTotal()
}

// UpdateBomItem edits a line and recomputes its total and the project rollup
// in one transaction. LineSequence and the source detection are immutable.
func UpdateBomItem(ctx context.Context, id int, input *NewBomItem) (*BomItem, error) {
	logger := config.GetLogger()

	if err := input.validate(); err != nil {
		return nil, err
	}
	item, err := utils.FetchModel[BomItem](ctx, id)
	if err != nil {
		return nil, err
	}

	if input.ComponentID != nil && (item.ComponentID == nil || *input.ComponentID != *item.ComponentID) {
		component, err := utils.FetchModel[Component](ctx, *input.ComponentID)
		if err != nil {
			return nil, err
		}
		item.ComponentID = &component.ID
		item.UnitPrice = component.UnitPrice
		if item.ItClass == "" {
			item.ItClass = component.ItClass
		}
	}
	item.applyEdits(input)

	db := config.GetDB()
	err = utils.ProjectLock(ctx, item.ProjectID, "models", "UpdateBomItem", func() error {
		tx := db.WithContext(ctx).Begin()
		if err := tx.Save(item).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if _, err := RecomputeProjectTotals(tx, ctx, item.ProjectID); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "UpdateBomItem", "updating line item", map[string]interface{}{"id": id}, err)
		return nil, err
	}
	return item, nil
}

// DeleteBomItem removes a line. Its sequence number is retired with it, and
// the source detection, if any, reverts to unaccepted so it can be reviewed
// again.
func DeleteBomItem(ctx context.Context, id int) (*BomItem, error) {
	logger := config.GetLogger()

	item, err := utils.FetchModel[BomItem](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = utils.ProjectLock(ctx, item.ProjectID, "models", "DeleteBomItem", func() error {
		tx := db.WithContext(ctx).Begin()
		if err := tx.Delete(item).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		err := tx.Model(&DetectedComponent{}).
			Where("accepted_item_id = ?", item.ID).
			Update("accepted_item_id", nil).Error
		if err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if _, err := RecomputeProjectTotals(tx, ctx, item.ProjectID); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "DeleteBomItem", "deleting line item", map[string]interface{}{"id": id}, err)
		return nil, err
	}
	return item, nil
}

// DeleteProjectBom clears every line of a project and zeroes the rollup.
// Sequence numbers are not reset: later lines continue from the counter.
func DeleteProjectBom(ctx context.Context, projectId int) error {
	logger := config.GetLogger()

	if err := utils.ValidateResourceId[Project](ctx, projectId); err != nil {
		return err
	}

	db := config.GetDB()
	err := utils.ProjectLock(ctx, projectId, "models", "DeleteProjectBom", func() error {
		tx := db.WithContext(ctx).Begin()
		if err := tx.Where("project_id = ?", projectId).Delete(&BomItem{}).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		err := tx.Model(&DetectedComponent{}).
			Where("project_id = ?", projectId).
			Update("accepted_item_id", nil).Error
		if err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if _, err := RecomputeProjectTotals(tx, ctx, projectId); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "DeleteProjectBom", "clearing project bom", map[string]interface{}{"projectId": projectId}, err)
	}
	return err
}

func GetBomItem(ctx context.Context, id int) (*BomItem, error) {
	return utils.FetchModel[BomItem](ctx, id, "Component")
}

func GetProjectBom(ctx context.Context, projectId int) ([]*BomItem, error) {
	db := config.GetDB()
	var results []*BomItem
	err := db.WithContext(ctx).Preload("Component").
		Where("project_id = ?", projectId).
		Order("line_sequence").Find(&results).Error
	if err != nil {
		return nil, utils.StoreErr(err)
	}
	return results, nil
}
