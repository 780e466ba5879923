package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/models/reports"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError maps model-layer errors onto HTTP statuses. Validation errors
// come back as a field map, everything else as a plain message.
func respondError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorLockNotObtained):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorStoreTimeout), errors.Is(err, utils.ErrorCatalogUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
	_ = c.Error(err)
}

func paramId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func createProjectHandler(c *gin.Context) {
	var input models.NewProject
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	project, err := models.CreateProject(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func listProjectsHandler(c *gin.Context) {
	var status *models.ProjectStatus
	if s := c.Query("status"); s != "" {
		parsed, err := models.ParseProjectStatus(s)
		if err != nil {
			respondError(c, err)
			return
		}
		status = &parsed
	}
	var clientName *string
	if s := c.Query("client"); s != "" {
		clientName = &s
	}
	projects, err := models.GetProjects(c.Request.Context(), status, clientName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func getProjectHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	project, err := models.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func updateProjectHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewProject
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	project, err := models.UpdateProject(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func updateProjectStatusHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	project, err := models.UpdateProjectStatus(c.Request.Context(), id, input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func deleteProjectHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	project, err := models.DeleteProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func createComponentHandler(c *gin.Context) {
	var input models.NewComponent
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	component, err := models.CreateComponent(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, component)
}

func listComponentsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	itClass := c.Query("class")
	if search := c.Query("search"); search != "" {
		limit, _ := strconv.Atoi(c.Query("limit"))
		components, err := models.SearchComponents(ctx, search, itClass, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, components)
		return
	}
	components, err := models.ListActiveComponents(ctx, itClass)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, components)
}

func lookupComponentHandler(c *gin.Context) {
	manufacturer := c.Query("manufacturer")
	model := c.Query("model")
	if manufacturer == "" || model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "manufacturer and model are required"})
		return
	}
	component, err := models.FindComponentByManufacturerModel(c.Request.Context(), manufacturer, model)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func getComponentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	component, err := models.GetComponent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func updateComponentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewComponent
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	component, err := models.UpdateComponent(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func deactivateComponentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	component, err := models.DeactivateComponent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func importDetectionsHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.DetectionImport
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	analysis, err := models.ImportDetections(c.Request.Context(), projectId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, analysis)
}

func listDetectionsHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	var status *models.MatchStatus
	if s := c.Query("status"); s != "" {
		parsed, err := models.ParseMatchStatus(s)
		if err != nil {
			respondError(c, err)
			return
		}
		status = &parsed
	}
	var confidence *models.ConfidenceLevel
	if s := c.Query("confidence"); s != "" {
		parsed, err := models.ParseConfidenceLevel(s)
		if err != nil {
			respondError(c, err)
			return
		}
		confidence = &parsed
	}
	detections, err := models.GetProjectDetections(c.Request.Context(), projectId, status, confidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detections)
}

func detectionSummaryHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	summary, err := models.GetDetectionStatusSummary(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func reclassifyDetectionsHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	result, err := models.ReclassifyProjectDetections(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func reclassifyDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	detection, err := models.ReclassifyDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func listProjectAnalysesHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	analyses, err := models.GetProjectAnalyses(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyses)
}

func getAnalysisHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	analysis, err := models.GetDrawingAnalysis(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func getDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	detection, err := models.GetDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func detectionSuggestionsHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	suggestions, err := models.GetMatchSuggestions(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

func approveDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	detection, err := models.ApproveDetectionMatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func rejectDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	detection, err := models.RejectDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func manualMatchHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input struct {
		ComponentID int `json:"component_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	detection, err := models.ApplyManualMatch(c.Request.Context(), id, input.ComponentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func acceptDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	input := models.AcceptDetectionInput{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
	}
	item, err := models.AcceptDetection(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func deleteDetectionHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	detection, err := models.DeleteDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detection)
}

func getProjectBomHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	items, err := models.GetProjectBom(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func addBomItemHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewBomItem
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	item, err := models.AddManualBomItem(c.Request.Context(), projectId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func getBomItemHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	item, err := models.GetBomItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func updateBomItemHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewBomItem
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	item, err := models.UpdateBomItem(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func deleteBomItemHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	item, err := models.DeleteBomItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func deleteProjectBomHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	if err := models.DeleteProjectBom(c.Request.Context(), projectId); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listProjectSummariesHandler(c *gin.Context) {
	rows, err := reports.ListProjectSummaries(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func projectSummaryReportHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	report, err := reports.GetProjectSummaryReport(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func completeBomReportHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	rows, err := reports.GetCompleteBomReport(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func detectionStatusReportHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	report, err := reports.GetDetectionStatusReport(c.Request.Context(), projectId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func exportBomHandler(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	companyName := c.DefaultQuery("company", "ELECTRICAL ESTIMATING")

	// Render the whole workbook before any response bytes go out so a
	// failed export is an error status, not a 200 with a truncated file.
	var buf bytes.Buffer
	var err error
	switch c.DefaultQuery("format", "detailed") {
	case "erp":
		err = reports.ExportBomForErp(c.Request.Context(), &buf, projectId, companyName)
	case "detailed":
		err = reports.ExportBomDetailed(c.Request.Context(), &buf, projectId, companyName)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown export format"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("bom-%d-%s.xlsx", projectId, time.Now().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, reports.BomExportContentType, buf.Bytes())
}
