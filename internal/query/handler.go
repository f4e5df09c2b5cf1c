package query

import (
	"errors"
	"net/http"
	"time"

	httperr "github.com/crimelens-lab/crimelens/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the query API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/views", s.HandleViews)
	r.POST("/v1/refresh", s.HandleRefresh)
}

// HandleViews handles GET /v1/views
// Query parameters: start, end (YYYY-MM-DD, inclusive), types (csv, optional).
// An absent or empty types parameter means "no category restriction".
func (s *Service) HandleViews(c *gin.Context) {
	var q struct {
		Start time.Time `form:"start" binding:"required" time_format:"2006-01-02"`
		End   time.Time `form:"end" binding:"required" time_format:"2006-01-02"`
		Types []string  `form:"types" collection_format:"csv"`
	}

	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	req := Request{
		Start: q.Start,
		End:   q.End,
		Types: TypesOf(q.Types...),
	}

	res, err := s.Query(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid view query",
				Details:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to derive views",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, res)
}

// HandleRefresh handles POST /v1/refresh: runs a full batch aggregation and
// swaps the snapshot. Concurrent triggers collapse into one run.
func (s *Service) HandleRefresh(c *gin.Context) {
	if s.refresh == nil {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpRefreshError,
			Message:   "Refresh is not enabled on this instance",
		})
		return
	}

	if err := s.refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpRefreshError,
			Message:   "Artifact refresh failed",
			Details:   err.Error(),
		})
		return
	}

	snap := s.handle.Current()
	c.JSON(http.StatusOK, gin.H{
		"run_id":    snap.RunID,
		"loaded_at": snap.LoadedAt,
	})
}
