package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

func setupIntegrationStores(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "estimator_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func mustCreateComponent(t *testing.T, ctx context.Context, input models.NewComponent) *models.Component {
	t.Helper()
	comp, err := models.CreateComponent(ctx, &input)
	if err != nil {
		t.Fatalf("CreateComponent(%s): %v", input.ItemName, err)
	}
	return comp
}

func TestDetectionToBomFlow(t *testing.T) {
	ctx := setupIntegrationStores(t)
	// near-identical tokens must clear the auto band in this flow
	t.Setenv("AUTO_MATCH_THRESHOLD", "75")

	project, err := models.CreateProject(ctx, &models.NewProject{
		ProjectCode: "PJ-1001",
		ProjectName: "Substation Upgrade",
		ClientName:  "Delta Power",
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	breaker := mustCreateComponent(t, ctx, models.NewComponent{
		ItemName:     "20A Breaker",
		ItClass:      "MCB",
		Manufacturer: "Schneider",
		ModelNumber:  "IC60N-20",
		UnitPrice:    decimal.NewFromFloat(12.50),
		MarkupPct:    decimal.NewFromFloat(15),
		SupplierCode: "MCB-1P-20A-SCH",
	})
	mustCreateComponent(t, ctx, models.NewComponent{
		ItemName:     "Distribution Board 12 Way",
		ItClass:      "PANEL",
		UnitPrice:    decimal.NewFromFloat(240),
		SupplierCode: "PANEL-12W",
	})

	qty := decimal.NewFromInt(4)
	analysis, err := models.ImportDetections(ctx, project.ID, &models.DetectionImport{
		SourceDrawing: "single-line.pdf",
		PageCount:     3,
		Detections: []models.NewDetection{
			{RawText: "20 amp breaker", ItClass: "MCB", Quantity: &qty, PageNumber: 1},
			{RawText: "weatherproof junction box", PageNumber: 2},
		},
	})
	if err != nil {
		t.Fatalf("ImportDetections: %v", err)
	}
	if analysis.DetectedCount != 2 {
		t.Fatalf("analysis detected count = %d, want 2", analysis.DetectedCount)
	}

	detections, err := models.GetProjectDetections(ctx, project.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetProjectDetections: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("detections = %d, want 2", len(detections))
	}

	var matched, unknown *models.DetectedComponent
	for _, d := range detections {
		if d.RawText == "20 amp breaker" {
			matched = d
		} else {
			unknown = d
		}
	}
	if matched.MatchStatus != models.MatchStatusMatched {
		t.Fatalf("breaker detection status = %s (confidence %s), want matched",
			matched.MatchStatus, matched.MatchConfidence)
	}
	if matched.MatchedID == nil || *matched.MatchedID != breaker.ID {
		t.Fatalf("breaker detection matched id = %v, want %d", matched.MatchedID, breaker.ID)
	}
	if unknown.MatchStatus != models.MatchStatusNew {
		t.Fatalf("junction box status = %s, want new", unknown.MatchStatus)
	}

	// unresolved detections cannot reach the BOM
	if _, err := models.AcceptDetection(ctx, unknown.ID, &models.AcceptDetectionInput{}); err != utils.ErrorUnresolvedComponent {
		t.Fatalf("accepting unresolved detection: err = %v, want ErrorUnresolvedComponent", err)
	}

	item, err := models.AcceptDetection(ctx, matched.ID, &models.AcceptDetectionInput{})
	if err != nil {
		t.Fatalf("AcceptDetection: %v", err)
	}
	if item.LineSequence != 1 {
		t.Fatalf("first line sequence = %d, want 1", item.LineSequence)
	}
	if !item.Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("line quantity = %s, want 4", item.Quantity)
	}
	// MCB installs at 0.25h each
	if !item.LaborHours.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("labor hours = %s, want 1", item.LaborHours)
	}
	// 4 * 12.50 * 1.15
	if !item.LineTotal.Equal(decimal.NewFromFloat(57.5)) {
		t.Fatalf("line total = %s, want 57.5", item.LineTotal)
	}

	if _, err := models.AcceptDetection(ctx, matched.ID, &models.AcceptDetectionInput{}); !errors.Is(err, utils.ErrorDetectionAccepted) {
		t.Fatalf("second acceptance: err = %v, want ErrorDetectionAccepted", err)
	}

	manual, err := models.AddManualBomItem(ctx, project.ID, &models.NewBomItem{
		Description: "Misc fixings",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimalPtr(40),
		MarkupPct:   decimalPtr(0),
		LaborHours:  decimalPtr(0.5),
	})
	if err != nil {
		t.Fatalf("AddManualBomItem: %v", err)
	}
	if manual.LineSequence != 2 {
		t.Fatalf("second line sequence = %d, want 2", manual.LineSequence)
	}

	refreshed, err := models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if refreshed.TotalLineItems != 2 {
		t.Fatalf("total line items = %d, want 2", refreshed.TotalLineItems)
	}
	if !refreshed.TotalComponents.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("total components = %s, want 5", refreshed.TotalComponents)
	}
	if !refreshed.TotalMaterialsCost.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("materials = %s, want 90", refreshed.TotalMaterialsCost)
	}
	// 1.5h at the default 80/h
	if !refreshed.TotalLaborCost.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("labor cost = %s, want 120", refreshed.TotalLaborCost)
	}
	if !refreshed.TotalMarkup.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("markup = %s, want 7.5", refreshed.TotalMarkup)
	}
	if !refreshed.GrandTotal.Equal(decimal.NewFromFloat(217.5)) {
		t.Fatalf("grand total = %s, want 217.5", refreshed.GrandTotal)
	}

	// deleting a line retires its sequence and reverts the detection
	if _, err := models.DeleteBomItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteBomItem: %v", err)
	}
	reverted, err := models.GetDetection(ctx, matched.ID)
	if err != nil {
		t.Fatalf("GetDetection: %v", err)
	}
	if reverted.AcceptedItemID != nil {
		t.Fatalf("deleted line should free its detection, got accepted item %d", *reverted.AcceptedItemID)
	}
	third, err := models.AddManualBomItem(ctx, project.ID, &models.NewBomItem{
		Description: "Replacement line",
		Quantity:    decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("AddManualBomItem after delete: %v", err)
	}
	if third.LineSequence != 3 {
		t.Fatalf("sequence after delete = %d, want 3 (no reuse)", third.LineSequence)
	}

	summary, err := models.GetDetectionStatusSummary(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetDetectionStatusSummary: %v", err)
	}
	if summary.Total != 2 || summary.Matched != 1 || summary.New != 1 {
		t.Fatalf("summary = %+v, want total 2, matched 1, new 1", summary)
	}
}

func TestConcurrentBomLineSequences(t *testing.T) {
	ctx := setupIntegrationStores(t)

	project, err := models.CreateProject(ctx, &models.NewProject{ProjectCode: "PJ-2001"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := models.AddManualBomItem(ctx, project.ID, &models.NewBomItem{
				Description: fmt.Sprintf("Concurrent line %d", n),
				Quantity:    decimal.NewFromInt(1),
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent AddManualBomItem: %v", err)
		}
	}

	items, err := models.GetProjectBom(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectBom: %v", err)
	}
	if len(items) != workers {
		t.Fatalf("line count = %d, want %d", len(items), workers)
	}
	seen := map[int]bool{}
	for _, item := range items {
		if seen[item.LineSequence] {
			t.Fatalf("duplicate line sequence %d", item.LineSequence)
		}
		seen[item.LineSequence] = true
	}

	refreshed, err := models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if refreshed.TotalLineItems != workers {
		t.Fatalf("rollup line items = %d, want %d", refreshed.TotalLineItems, workers)
	}
	if !refreshed.TotalComponents.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("rollup components = %s, want %d", refreshed.TotalComponents, workers)
	}
}

func TestConcurrentAcceptsCreateOneLine(t *testing.T) {
	ctx := setupIntegrationStores(t)
	t.Setenv("AUTO_MATCH_THRESHOLD", "75")

	project, err := models.CreateProject(ctx, &models.NewProject{ProjectCode: "PJ-3001"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	mustCreateComponent(t, ctx, models.NewComponent{
		ItemName:     "20A Breaker",
		ItClass:      "MCB",
		UnitPrice:    decimal.NewFromFloat(12.50),
		SupplierCode: "MCB-1P-20A",
	})

	qty := decimal.NewFromInt(2)
	_, err = models.ImportDetections(ctx, project.ID, &models.DetectionImport{
		SourceDrawing: "panel-schedule.pdf",
		Detections: []models.NewDetection{
			{RawText: "20 amp breaker", ItClass: "MCB", Quantity: &qty},
		},
	})
	if err != nil {
		t.Fatalf("ImportDetections: %v", err)
	}
	detections, err := models.GetProjectDetections(ctx, project.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetProjectDetections: %v", err)
	}
	detection := detections[0]

	const accepts = 4
	var wg sync.WaitGroup
	errCh := make(chan error, accepts)
	for i := 0; i < accepts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.AcceptDetection(ctx, detection.ID, &models.AcceptDetectionInput{})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	succeeded, refused := 0, 0
	for err := range errCh {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, utils.ErrorDetectionAccepted):
			refused++
		default:
			t.Fatalf("concurrent AcceptDetection: %v", err)
		}
	}
	if succeeded != 1 || refused != accepts-1 {
		t.Fatalf("accepts succeeded=%d refused=%d, want 1/%d", succeeded, refused, accepts-1)
	}

	items, err := models.GetProjectBom(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectBom: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("line count = %d, want 1", len(items))
	}
	if items[0].SourceDetectionID == nil || *items[0].SourceDetectionID != detection.ID {
		t.Fatalf("line source detection = %v, want %d", items[0].SourceDetectionID, detection.ID)
	}

	refreshed, err := models.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if refreshed.TotalLineItems != 1 {
		t.Fatalf("rollup line items = %d, want 1", refreshed.TotalLineItems)
	}
}

func decimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("estimator-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("estimator-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=estimator_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
