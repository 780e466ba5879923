package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/shopspring/decimal"
)

// MatchSuggestion is one ranked catalog candidate for a detection.
type MatchSuggestion struct {
	Component *Component `json:"component"`
	Score     int        `json:"score"`
}

// ClassificationResult reports the outcome counts of a batch run.
type ClassificationResult struct {
	ProjectID int `json:"project_id"`
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Review    int `json:"review"`
	New       int `json:"new"`
}

// normalizeText lowercases, strips punctuation and sorts tokens so that
// "Breaker, 20A" and "20a breaker" compare equal.
func normalizeText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	tokens := strings.Fields(b.String())
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func similarity(a string, b string) int {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	lev.InsertCost, lev.DeleteCost, lev.ReplaceCost = 1, 1, 1
	return int(strutil.Similarity(na, nb, lev) * 100)
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(normalizeText(text)) {
		set[tok] = struct{}{}
	}
	return set
}

func hasAllTokens(set map[string]struct{}, text string) bool {
	tokens := strings.Fields(normalizeText(text))
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}

// ScoreComponent rates how well a free-text detection matches a catalog
// component, 0-100. The item name, the full identity string and each
// description layer are all tried, since drawings use short names as often
// as the stock description. A text that mentions the exact model number or
// manufacturer gets pushed up.
func ScoreComponent(rawText string, comp *Component) int {
	identity := strings.TrimSpace(comp.ItemName + " " + comp.Manufacturer + " " + comp.ModelNumber)
	score := similarity(rawText, identity)
	if s := similarity(rawText, comp.ItemName); s > score {
		score = s
	}
	for _, layer := range comp.descriptionLayers() {
		if s := similarity(rawText, layer); s > score {
			score = s
		}
	}

	rawTokens := tokenSet(rawText)
	if comp.ModelNumber != "" && hasAllTokens(rawTokens, comp.ModelNumber) {
		score += 10
	}
	if comp.Manufacturer != "" && hasAllTokens(rawTokens, comp.Manufacturer) {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// rankCandidates scores every candidate and orders them best first. Equal
// scores prefer the component with the deeper description, then the older
// catalog entry, so reruns over the same catalog pick the same winner.
func rankCandidates(rawText string, candidates []*Component) []MatchSuggestion {
	ranked := make([]MatchSuggestion, 0, len(candidates))
	for _, comp := range candidates {
		ranked = append(ranked, MatchSuggestion{Component: comp, Score: ScoreComponent(rawText, comp)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		di, dj := len(ranked[i].Component.descriptionLayers()), len(ranked[j].Component.descriptionLayers())
		if di != dj {
			return di > dj
		}
		return ranked[i].Component.ID < ranked[j].Component.ID
	})
	return ranked
}

// classifyDetection sets the detection's match fields from the best candidate:
// at or above the auto threshold it is matched, at or above the review
// threshold it needs a reviewer, below that it is treated as a new component.
func classifyDetection(detection *DetectedComponent, candidates []*Component) {
	detection.MatchStatus = MatchStatusNew
	detection.MatchMethod = nil
	detection.MatchedID = nil
	detection.MatchConfidence = decimal.Zero

	ranked := rankCandidates(detection.RawText, candidates)
	if len(ranked) == 0 {
		return
	}
	best := ranked[0]
	detection.MatchConfidence = decimal.NewFromInt(int64(best.Score))

	switch {
	case best.Score >= config.AutoMatchThreshold():
		auto := MatchMethodAuto
		detection.MatchStatus = MatchStatusMatched
		detection.MatchMethod = &auto
		detection.MatchedID = &best.Component.ID
	case best.Score >= config.ReviewThreshold():
		detection.MatchStatus = MatchStatusReview
		detection.MatchedID = &best.Component.ID
	}
}

// catalogIndex holds the active catalog grouped by component class so batch
// classification reads the store once.
type catalogIndex struct {
	all     []*Component
	byClass map[string][]*Component
}

func (idx *catalogIndex) candidates(itClass string) []*Component {
	class := strings.ToUpper(strings.TrimSpace(itClass))
	if class != "" {
		if group, ok := idx.byClass[class]; ok {
			return group
		}
	}
	return idx.all
}

func loadCatalogByClass(ctx context.Context) (*catalogIndex, error) {
	logger := config.GetLogger()

	components, err := utils.RetrieveRedisList[Component]()
	if err != nil || len(components) == 0 {
		components, err = ListActiveComponents(ctx, "")
		if err != nil {
			config.LogError(logger, "models", "loadCatalogByClass", "loading component catalog", nil, err)
			return nil, utils.ErrorCatalogUnavailable
		}
		if cacheErr := utils.StoreRedisList[Component](components); cacheErr != nil {
			logger.WithField("error", cacheErr.Error()).Warn("component catalog cache store failed")
		}
	}

	idx := catalogIndex{all: components, byClass: map[string][]*Component{}}
	for _, comp := range components {
		class := strings.ToUpper(strings.TrimSpace(comp.ItClass))
		if class != "" {
			idx.byClass[class] = append(idx.byClass[class], comp)
		}
	}
	return &idx, nil
}

// GetMatchSuggestions returns the top catalog candidates for one detection,
// for the review screen.
func GetMatchSuggestions(ctx context.Context, detectionId int, limit int) ([]MatchSuggestion, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalogByClass(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rankCandidates(detection.RawText, catalog.candidates(detection.ItClass))
	if limit <= 0 {
		limit = config.SearchLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// ReclassifyProjectDetections reruns classification over every detection in
// the project that a reviewer has not already settled. Manual decisions and
// accepted detections are left alone.
func ReclassifyProjectDetections(ctx context.Context, projectId int) (*ClassificationResult, error) {
	logger := config.GetLogger()

	if err := utils.ValidateResourceId[Project](ctx, projectId); err != nil {
		return nil, err
	}
	catalog, err := loadCatalogByClass(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	result := ClassificationResult{ProjectID: projectId}
	err = utils.ProjectLock(ctx, projectId, "models", "ReclassifyProjectDetections", func() error {
		var detections []*DetectedComponent
		tx := db.WithContext(ctx).Begin()
		if err := tx.Where("project_id = ? AND accepted_item_id IS NULL", projectId).Find(&detections).Error; err != nil {
			tx.Rollback()
			return utils.StoreErr(err)
		}
		for _, detection := range detections {
			if detection.MatchMethod != nil && *detection.MatchMethod == MatchMethodManual {
				continue
			}
			if detection.MatchStatus == MatchStatusRejected {
				continue
			}
			classifyDetection(detection, catalog.candidates(detection.ItClass))
			if err := tx.Save(detection).Error; err != nil {
				tx.Rollback()
				return utils.StoreErr(err)
			}
			result.Total++
			switch detection.MatchStatus {
			case MatchStatusMatched:
				result.Matched++
			case MatchStatusReview:
				result.Review++
			case MatchStatusNew:
				result.New++
			}
		}
		return tx.Commit().Error
	})
	if err != nil {
		config.LogError(logger, "models", "ReclassifyProjectDetections", "reclassifying detections", map[string]interface{}{"projectId": projectId}, err)
		return nil, err
	}
	return &result, nil
}

// ReclassifyDetection reruns classification for one detection, e.g. after the
// library gained the part it describes. Manual and accepted detections keep
// the reviewer's decision.
func ReclassifyDetection(ctx context.Context, detectionId int) (*DetectedComponent, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	if detection.AcceptedItemID != nil {
		return nil, utils.ErrorInvalidReviewState
	}
	if detection.MatchMethod != nil && *detection.MatchMethod == MatchMethodManual {
		return nil, utils.ErrorInvalidReviewState
	}
	catalog, err := loadCatalogByClass(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = utils.ProjectLock(ctx, detection.ProjectID, "models", "ReclassifyDetection", func() error {
		classifyDetection(detection, catalog.candidates(detection.ItClass))
		return utils.StoreErr(db.WithContext(ctx).Save(detection).Error)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ReclassifyDetection", "reclassifying detection", map[string]interface{}{"detectionId": detectionId}, err)
		return nil, err
	}
	return detection, nil
}

func markReviewed(ctx context.Context, detection *DetectedComponent) {
	reviewedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now()
	detection.ReviewedBy = reviewedBy
	detection.ReviewedAt = &now
}

// ApproveDetectionMatch confirms a review-status detection against its
// suggested component.
func ApproveDetectionMatch(ctx context.Context, detectionId int) (*DetectedComponent, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	if detection.MatchStatus != MatchStatusReview {
		return nil, utils.ErrorInvalidReviewState
	}
	if detection.MatchedID == nil {
		return nil, utils.ErrorUnresolvedComponent
	}

	manual := MatchMethodManual
	detection.MatchStatus = MatchStatusMatched
	detection.MatchMethod = &manual
	markReviewed(ctx, detection)

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(detection).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return detection, nil
}

// ApplyManualMatch binds a detection to a reviewer-chosen catalog component,
// overriding whatever the classifier decided.
func ApplyManualMatch(ctx context.Context, detectionId int, componentId int) (*DetectedComponent, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	if detection.AcceptedItemID != nil {
		return nil, utils.ErrorInvalidReviewState
	}
	component, err := utils.FetchModel[Component](ctx, componentId)
	if err != nil {
		return nil, err
	}

	manual := MatchMethodManual
	detection.MatchStatus = MatchStatusMatched
	detection.MatchMethod = &manual
	detection.MatchedID = &component.ID
	detection.MatchConfidence = decimal.NewFromInt(100)
	markReviewed(ctx, detection)

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(detection).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return detection, nil
}

// RejectDetection marks a detection as noise. Rejected detections stay on
// the record but never reach the bill of materials.
func RejectDetection(ctx context.Context, detectionId int) (*DetectedComponent, error) {
	detection, err := utils.FetchModel[DetectedComponent](ctx, detectionId)
	if err != nil {
		return nil, err
	}
	if detection.AcceptedItemID != nil {
		return nil, utils.ErrorInvalidReviewState
	}

	manual := MatchMethodManual
	detection.MatchStatus = MatchStatusRejected
	detection.MatchMethod = &manual
	detection.MatchedID = nil
	markReviewed(ctx, detection)

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(detection).Error; err != nil {
		return nil, utils.StoreErr(err)
	}
	return detection, nil
}
