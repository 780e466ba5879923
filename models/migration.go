package models

import (
	"log"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Project{},
		&Component{},
		&DrawingAnalysis{},
		&DetectedComponent{},
		&BomItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
