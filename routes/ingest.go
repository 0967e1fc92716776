package routes

import (
	"errors"
	"net/http"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/models"
	"manual-qa-backend/services"
	"manual-qa-backend/utils"

	"github.com/gin-gonic/gin"
)

// SetupIngestRoutes wires the build-control surface: trigger a build,
// poll its state, cancel it, health.
func SetupIngestRoutes(router *gin.Engine, cfg *config.Config, coordinator *services.Coordinator, st *store.Store) {
	router.GET("/health", func(c *gin.Context) {
		state := coordinator.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"index":     state.Status,
			"has_index": coordinator.Pair() != nil,
		})
	})

	api := router.Group("/api")
	{
		api.POST("/ingest", func(c *gin.Context) {
			var req struct {
				PDFPath string `json:"pdf_path"`
			}
			// Body is optional; default to the configured manual.
			_ = c.ShouldBindJSON(&req)
			pdfPath := req.PDFPath
			if pdfPath == "" {
				pdfPath = cfg.PDFPath
			}
			if pdfPath == "" {
				utils.RespondWithBadRequest(c, "no pdf_path given and PDF_PATH is not configured", nil)
				return
			}

			if err := coordinator.Start(pdfPath); err != nil {
				if errors.Is(err, models.ErrBuildInProgress) {
					c.JSON(http.StatusConflict, gin.H{
						"error_code": "build_in_progress",
						"message":    "an index build is already running",
						"state":      coordinator.Snapshot(),
					})
					return
				}
				utils.RespondWithInternalError(c, "failed to start index build", err.Error())
				return
			}

			c.JSON(http.StatusAccepted, models.IngestResponse{
				State:      coordinator.Snapshot(),
				StorageDir: st.Root(),
			})
		})

		api.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, coordinator.Snapshot())
		})

		api.POST("/ingest/cancel", func(c *gin.Context) {
			coordinator.Cancel()
			c.JSON(http.StatusOK, gin.H{
				"message": "cancellation requested",
				"state":   coordinator.Snapshot(),
			})
		})
	}
}
