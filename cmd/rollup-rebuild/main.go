package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
)

// Rebuilds the cached project rollup columns from the stored BOM lines.
// Normally they stay in sync transactionally; this repairs drift after
// manual data surgery.

func main() {
	projectID := flag.Int("project-id", 0, "Optional: rebuild only one project (0 = all)")
	projectCode := flag.String("project-code", "", "Optional: rebuild only the project with this code")
	flag.Parse()

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "RollupRebuild")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var projects []models.Project
	if *projectCode != "" {
		project, err := models.GetProjectByCode(ctx, *projectCode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "project %s: %v\n", *projectCode, err)
			os.Exit(1)
		}
		projects = append(projects, *project)
	} else {
		query := db.WithContext(ctx).Select("id", "project_code")
		if *projectID > 0 {
			query = query.Where("id = ?", *projectID)
		}
		if err := query.Find(&projects).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list projects: %v\n", err)
			os.Exit(1)
		}
	}
	if len(projects) == 0 {
		fmt.Fprintln(os.Stderr, "no projects found")
		return
	}

	rebuilt, failed := 0, 0
	for _, project := range projects {
		err := utils.ProjectLock(ctx, project.ID, "rollup-rebuild", "main", func() error {
			tx := db.WithContext(ctx).Begin()
			totals, err := models.RecomputeProjectTotals(tx, ctx, project.ID)
			if err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Commit().Error; err != nil {
				return err
			}
			fmt.Printf("%-20s lines=%d grand_total=%s\n", project.ProjectCode, totals.TotalLineItems, totals.GrandTotal.StringFixed(2))
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "project %s: %v\n", project.ProjectCode, err)
			failed++
			continue
		}
		rebuilt++
	}

	fmt.Printf("Done. rebuilt=%d failed=%d\n", rebuilt, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
