package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestExportBomHandlerRejectsUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/projects/1/export/bom?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	exportBomHandler(c)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	// a failed export must not look like a file download
	if got := recorder.Header().Get("Content-Disposition"); got != "" {
		t.Fatalf("Content-Disposition = %q, want unset on error", got)
	}
}

func TestExportBomHandlerRejectsBadProjectId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/projects/abc/export/bom", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	exportBomHandler(c)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Disposition"); got != "" {
		t.Fatalf("Content-Disposition = %q, want unset on error", got)
	}
}
