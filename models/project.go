package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

// Project carries cached rollup totals maintained by RecomputeProjectTotals.
// The cache is the read-side contract: summary consumers read these fields and
// never re-aggregate the BOM on the fly. Every BOM mutation recomputes them
// inside the same transaction, so readers never observe a line without its
// totals.
type Project struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ProjectCode    string          `gorm:"size:50;not null;uniqueIndex" json:"project_code" binding:"required"`
	ProjectName    string          `gorm:"size:255;not null" json:"project_name"`
	ClientName     string          `gorm:"size:255" json:"client_name"`
	EstimateNumber string          `gorm:"size:50" json:"estimate_number"`
	Status         ProjectStatus   `gorm:"type:enum('draft','active','imported','completed','archived');default:draft" json:"status"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedBy      string          `gorm:"size:100" json:"created_by"`
	LaborRate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"labor_rate_per_hour"`
	DefaultMarkup  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"default_markup_pct"`

	TotalLineItems     int             `gorm:"default:0" json:"total_line_items"`
	TotalComponents    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_components"`
	TotalMaterialsCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_materials_cost"`
	TotalLaborHours    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_labor_hours"`
	TotalLaborCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_labor_cost"`
	TotalMarkup        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_markup"`
	GrandTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	BomItems   []BomItem           `gorm:"foreignKey:ProjectID" json:"bom_items,omitempty"`
	Detections []DetectedComponent `gorm:"foreignKey:ProjectID" json:"detections,omitempty"`
}

type NewProject struct {
	ProjectCode    string           `json:"project_code" binding:"required"`
	ProjectName    string           `json:"project_name"`
	ClientName     string           `json:"client_name"`
	EstimateNumber string           `json:"estimate_number"`
	Notes          string           `json:"notes"`
	LaborRate      *decimal.Decimal `json:"labor_rate_per_hour"`
	DefaultMarkup  *decimal.Decimal `json:"default_markup_pct"`
}

func (input *NewProject) validate(ctx context.Context, id int) error {
	if strings.TrimSpace(input.ProjectCode) == "" {
		return errors.New("project code is required")
	}
	if err := utils.ValidateUnique[Project](ctx, "project_code", input.ProjectCode, id); err != nil {
		return err
	}
	if input.LaborRate != nil && input.LaborRate.IsNegative() {
		return errors.New("labor rate must not be negative")
	}
	if input.DefaultMarkup != nil && input.DefaultMarkup.IsNegative() {
		return utils.ErrorInvalidMarkup
	}
	return nil
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	createdBy, _ := utils.GetUserNameFromContext(ctx)
	projectName := input.ProjectName
	if strings.TrimSpace(projectName) == "" {
		projectName = fmt.Sprintf("Project %s", input.ProjectCode)
	}

	project := Project{
		ProjectCode:    input.ProjectCode,
		ProjectName:    projectName,
		ClientName:     input.ClientName,
		EstimateNumber: input.EstimateNumber,
		Status:         ProjectStatusDraft,
		Notes:          input.Notes,
		CreatedBy:      createdBy,
		LaborRate:      utils.DereferencePtr(input.LaborRate, config.DefaultLaborRate()),
		DefaultMarkup:  utils.DereferencePtr(input.DefaultMarkup, config.DefaultMarkupPct()),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return &project, nil
}

func UpdateProject(ctx context.Context, id int, input *NewProject) (*Project, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	project.ProjectCode = input.ProjectCode
	if strings.TrimSpace(input.ProjectName) != "" {
		project.ProjectName = input.ProjectName
	}
	project.ClientName = input.ClientName
	project.EstimateNumber = input.EstimateNumber
	project.Notes = input.Notes
	if input.LaborRate != nil {
		project.LaborRate = *input.LaborRate
	}
	if input.DefaultMarkup != nil {
		project.DefaultMarkup = *input.DefaultMarkup
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, utils.StoreErr(err)
	}

	// a labor-rate change shifts labor cost on every line's rollup
	if input.LaborRate != nil {
		err = utils.ProjectLock(ctx, id, "models", "UpdateProject", func() error {
			tx := db.WithContext(ctx).Begin()
			if _, rerr := RecomputeProjectTotals(tx, ctx, id); rerr != nil {
				tx.Rollback()
				return rerr
			}
			return tx.Commit().Error
		})
		if err != nil {
			return nil, err
		}
		return utils.FetchModel[Project](ctx, id)
	}
	return project, nil
}

func UpdateProjectStatus(ctx context.Context, id int, status string) (*Project, error) {
	parsed, err := ParseProjectStatus(status)
	if err != nil {
		return nil, err
	}
	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(project).Update("Status", parsed).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	project.Status = parsed
	return project, nil
}

// DeleteProject removes the project with its BOM lines, detections and
// analysis batches in one transaction.
func DeleteProject(ctx context.Context, id int) (*Project, error) {
	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = utils.ProjectLock(ctx, id, "models", "DeleteProject", func() error {
		tx := db.WithContext(ctx).Begin()
		if err := tx.Where("project_id = ?", id).Delete(&BomItem{}).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&DetectedComponent{}).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&DrawingAnalysis{}).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		if err := tx.Delete(project).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(fmt.Sprintf("project:%d-line_seq", id))
	return project, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	return utils.FetchModel[Project](ctx, id)
}

func GetProjectByCode(ctx context.Context, code string) (*Project, error) {
	db := config.GetDB()
	var result Project
	err := db.WithContext(ctx).Where("project_code = ?", code).First(&result).Error
	if err != nil {
		if serr := utils.StoreErr(err); serr == utils.ErrorStoreTimeout {
			return nil, serr
		}
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetProjects(ctx context.Context, status *ProjectStatus, clientName *string) ([]*Project, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if clientName != nil && len(*clientName) > 0 {
		dbCtx = dbCtx.Where("client_name LIKE ?", "%"+*clientName+"%")
	}
	var results []*Project
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return results, nil
}
