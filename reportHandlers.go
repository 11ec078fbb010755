package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/reports"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PermissionOps guards the reconciliation and backfill endpoints.
const PermissionOps = "ops.admin"

func parseBranchIds(raw string) ([]int, error) {
	parts := utils.SplitAndTrim(raw)
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, models.NewValidationError("ids", "%q is not a branch id", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *app) consolidate(c *gin.Context) (*reports.Consolidation, bool) {
	ids, err := parseBranchIds(c.Query("ids"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	summary, err := a.reports.Consolidate(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return summary, true
}

func (a *app) branchReportHandler(c *gin.Context) {
	summary, ok := a.consolidate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summary)
}

// branchReportXLSXHandler streams the spreadsheet, or stores it in GCS and
// returns its location when upload=true.
func (a *app) branchReportXLSXHandler(c *gin.Context) {
	summary, ok := a.consolidate(c)
	if !ok {
		return
	}
	if c.Query("upload") == "true" {
		if !utils.ReportBucketConfigured() {
			respondError(c, models.NewValidationError("upload", "report bucket is not configured"))
			return
		}
		location, err := reports.UploadReport(c.Request.Context(), summary)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"location": location})
		return
	}
	content, err := reports.ExportXLSX(summary)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="branches.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, content)
}

func (a *app) reconcileHandler(c *gin.Context) {
	if !utils.HasPermission(c.Request.Context(), PermissionOps) {
		respondError(c, &models.PermissionDenied{Permission: PermissionOps})
		return
	}
	result, err := a.ledger.ReconcileLedgers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *app) fiscalBackfillHandler(c *gin.Context) {
	if !utils.HasPermission(c.Request.Context(), PermissionOps) {
		respondError(c, &models.PermissionDenied{Permission: PermissionOps})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	enqueued, err := a.ledger.EnqueueUnauthorizedFiscalSales(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": enqueued})
}
