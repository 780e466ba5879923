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

// Component is one entry of the component library the matcher reconciles
// detections against. ItemDesc..ItDesc4 are layered descriptions, general
// first, increasingly specific.
type Component struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ItemName     string          `gorm:"size:255;not null;index" json:"itemname" binding:"required"`
	ItemDesc     string          `gorm:"size:255" json:"itemdesc"`
	ItDesc2      string          `gorm:"size:255" json:"itdesc2"`
	ItDesc3      string          `gorm:"size:255" json:"itdesc3"`
	ItDesc4      string          `gorm:"size:255" json:"itdesc4"`
	ItClass      string          `gorm:"size:50;not null;default:OTHER;index" json:"itclass"`
	Manufacturer string          `gorm:"size:100" json:"manufacturer"`
	ModelNumber  string          `gorm:"size:100" json:"model_number"`
	Rating       string          `gorm:"size:100" json:"rating"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	MarkupPct    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"markup_pct"`
	SupplierCode string          `gorm:"size:100;index" json:"supplier_code"`
	LeadTimeDays *int            `json:"lead_time_days"`
	Source       ComponentSource `gorm:"type:enum('manual','imported','detected');default:manual" json:"source"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewComponent struct {
	ItemName     string          `json:"itemname" binding:"required"`
	ItemDesc     string          `json:"itemdesc"`
	ItDesc2      string          `json:"itdesc2"`
	ItDesc3      string          `json:"itdesc3"`
	ItDesc4      string          `json:"itdesc4"`
	ItClass      string          `json:"itclass"`
	Manufacturer string          `json:"manufacturer"`
	ModelNumber  string          `json:"model_number"`
	Rating       string          `json:"rating"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	MarkupPct    decimal.Decimal `json:"markup_pct"`
	SupplierCode string          `json:"supplier_code"`
	LeadTimeDays *int            `json:"lead_time_days"`
	Source       ComponentSource `json:"source"`
}

// descriptionLayers returns the populated description fields in order. The
// matcher scores against each layer and breaks score ties toward the entry
// with more layers, i.e. the more specific library entry.
func (c *Component) descriptionLayers() []string {
	var layers []string
	for _, d := range []string{c.ItemDesc, c.ItDesc2, c.ItDesc3, c.ItDesc4} {
		if strings.TrimSpace(d) != "" {
			layers = append(layers, d)
		}
	}
	return layers
}

// mostSpecificDesc returns the last non-empty description layer.
func (c *Component) mostSpecificDesc() string {
	for _, d := range []string{c.ItDesc4, c.ItDesc3, c.ItDesc2, c.ItemDesc} {
		if strings.TrimSpace(d) != "" {
			return d
		}
	}
	return ""
}

func (input *NewComponent) validate(ctx context.Context, id int) error {
	if input.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	if input.MarkupPct.IsNegative() {
		return utils.ErrorInvalidMarkup
	}
	if strings.TrimSpace(input.SupplierCode) != "" {
		if err := utils.ValidateUnique[Component](ctx, "supplier_code", input.SupplierCode, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateComponent(ctx context.Context, input *NewComponent) (*Component, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	itClass := strings.ToUpper(strings.TrimSpace(input.ItClass))
	if !config.IsKnownComponentClass(itClass) {
		itClass = "OTHER"
	}
	source := input.Source
	if source == "" {
		source = ComponentSourceManual
	}
	createdBy, _ := utils.GetUserNameFromContext(ctx)

	component := Component{
		ItemName:     input.ItemName,
		ItemDesc:     input.ItemDesc,
		ItDesc2:      input.ItDesc2,
		ItDesc3:      input.ItDesc3,
		ItDesc4:      input.ItDesc4,
		ItClass:      itClass,
		Manufacturer: input.Manufacturer,
		ModelNumber:  input.ModelNumber,
		Rating:       input.Rating,
		UnitPrice:    input.UnitPrice,
		MarkupPct:    input.MarkupPct,
		SupplierCode: input.SupplierCode,
		LeadTimeDays: input.LeadTimeDays,
		Source:       source,
		IsActive:     utils.NewTrue(),
		CreatedBy:    createdBy,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&component).Error
	if err != nil {
		return nil, utils.StoreErr(err)
	}
	// the matcher caches the active catalog; invalidate on every write
	_ = utils.RemoveRedisList[Component]()
	return &component, nil
}

func UpdateComponent(ctx context.Context, id int, input *NewComponent) (*Component, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	component, err := utils.FetchModel[Component](ctx, id)
	if err != nil {
		return nil, err
	}

	component.ItemName = input.ItemName
	component.ItemDesc = input.ItemDesc
	component.ItDesc2 = input.ItDesc2
	component.ItDesc3 = input.ItDesc3
	component.ItDesc4 = input.ItDesc4
	if config.IsKnownComponentClass(input.ItClass) {
		component.ItClass = strings.ToUpper(strings.TrimSpace(input.ItClass))
	}
	component.Manufacturer = input.Manufacturer
	component.ModelNumber = input.ModelNumber
	component.Rating = input.Rating
	component.UnitPrice = input.UnitPrice
	component.MarkupPct = input.MarkupPct
	component.SupplierCode = input.SupplierCode
	component.LeadTimeDays = input.LeadTimeDays

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(component).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	_ = utils.RemoveRedisList[Component]()
	return component, nil
}

// DeactivateComponent retires a library entry without breaking BOM lines that
// already reference it.
func DeactivateComponent(ctx context.Context, id int) (*Component, error) {
	component, err := utils.FetchModel[Component](ctx, id)
	if err != nil {
		return nil, err
	}
	component.IsActive = utils.NewFalse()

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(component).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	_ = utils.RemoveRedisList[Component]()
	return component, nil
}

func GetComponent(ctx context.Context, id int) (*Component, error) {
	return utils.FetchModel[Component](ctx, id)
}

// ListActiveComponents returns the active catalog, optionally filtered by
// class, ordered by item name. This is the candidate set the matcher scores.
func ListActiveComponents(ctx context.Context, itClass string) ([]*Component, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("is_active = ?", true)
	if strings.TrimSpace(itClass) != "" {
		dbCtx = dbCtx.Where("it_class = ?", strings.ToUpper(strings.TrimSpace(itClass)))
	}
	var results []*Component
	if err := dbCtx.Order("item_name").Find(&results).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return results, nil
}

func SearchComponents(ctx context.Context, searchTerm string, itClass string, limit int) ([]*Component, error) {
	if limit <= 0 || limit > config.SearchLimit*10 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("is_active = ?", true)
	if strings.TrimSpace(itClass) != "" {
		dbCtx = dbCtx.Where("it_class = ?", strings.ToUpper(strings.TrimSpace(itClass)))
	}
	if strings.TrimSpace(searchTerm) != "" {
		like := "%" + strings.TrimSpace(searchTerm) + "%"
		dbCtx = dbCtx.Where("item_name LIKE ? OR manufacturer LIKE ? OR model_number LIKE ?", like, like, like)
	}
	var results []*Component
	if err := dbCtx.Order("created_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return results, nil
}

// FindComponentByManufacturerModel looks for an exact manufacturer + model
// match, the strongest identity signal a detection can carry.
func FindComponentByManufacturerModel(ctx context.Context, manufacturer string, modelNumber string) (*Component, error) {
	if strings.TrimSpace(manufacturer) == "" || strings.TrimSpace(modelNumber) == "" {
		return nil, nil
	}
	db := config.GetDB()
	var result Component
	err := db.WithContext(ctx).
		Where("is_active = ? AND LOWER(manufacturer) = ? AND LOWER(model_number) = ?",
			true, strings.ToLower(manufacturer), strings.ToLower(modelNumber)).
		Order("id").
		First(&result).Error
	if err != nil {
		if serr := utils.StoreErr(err); serr == utils.ErrorStoreTimeout {
			return nil, serr
		}
		return nil, nil
	}
	return &result, nil
}
