package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/models"
	"manual-qa-backend/services"
	"manual-qa-backend/utils"

	"github.com/gin-gonic/gin"
)

// SetupQueryRoutes wires the read side: question answering, raw search,
// index stats and the inventory export.
func SetupQueryRoutes(router *gin.Engine, cfg *config.Config, qa *services.QAService, retrieval *services.RetrievalEngine, coordinator *services.Coordinator) {
	api := router.Group("/api")
	{
		api.POST("/query", func(c *gin.Context) {
			var req models.QueryRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				utils.RespondWithBadRequest(c, "question is required", err.Error())
				return
			}

			resp, err := qa.Answer(c.Request.Context(), req)
			if err != nil {
				respondRetrievalError(c, err)
				return
			}
			c.JSON(http.StatusOK, resp)
		})

		api.GET("/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				utils.RespondWithBadRequest(c, "query parameter 'q' is required", nil)
				return
			}
			topK, _ := strconv.Atoi(c.DefaultQuery("k", "0"))

			result, err := retrieval.Retrieve(c.Request.Context(), query, topK)
			if err != nil {
				respondRetrievalError(c, err)
				return
			}

			results := make([]models.Citation, len(result.Chunks))
			for i, sc := range result.Chunks {
				results[i] = models.Citation{
					ChunkID:      sc.Chunk.ID,
					SectionTitle: sc.Chunk.SectionTitle,
					PageStart:    sc.Chunk.PageStart,
					PageEnd:      sc.Chunk.PageEnd,
					Score:        sc.Score,
					Text:         sc.Chunk.Text,
				}
			}
			c.JSON(http.StatusOK, models.SearchResponse{
				Results:       results,
				TopScore:      result.TopScore,
				LowConfidence: result.LowConfidence,
				UsedHyDE:      result.UsedHyDE,
			})
		})

		api.GET("/stats", func(c *gin.Context) {
			pair := coordinator.Pair()
			resp := models.StatsResponse{
				RerankEnabled: cfg.RerankEnabled,
				StorageDir:    cfg.StorageDir,
			}
			if pair != nil {
				resp.HasIndex = true
				resp.Pages = pair.Meta.Pages
				resp.Sections = len(pair.Sections)
				resp.Chunks = len(pair.Chunks)
				resp.EmbeddingModel = pair.Meta.EmbeddingModel
			}
			c.JSON(http.StatusOK, resp)
		})

		api.GET("/export", func(c *gin.Context) {
			pair := coordinator.Pair()
			if pair == nil {
				respondRetrievalError(c, models.ErrIndexUnavailable)
				return
			}

			buf, err := services.ExportWorkbook(pair)
			if err != nil {
				utils.RespondWithInternalError(c, "failed to build export workbook", err.Error())
				return
			}

			filename := fmt.Sprintf("manual-index-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
			c.Header("Content-Disposition", "attachment; filename="+filename)
			c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
		})
	}
}

func respondRetrievalError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrIndexUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error_code": "index_not_ready",
			"message":    "no index has been built yet; POST /api/ingest first",
		})
		return
	}
	utils.RespondWithInternalError(c, "retrieval failed", err.Error())
}
