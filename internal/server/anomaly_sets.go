package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	rerundomain "github.com/terralens/geosignal/internal/rerun/domain"
	"github.com/terralens/geosignal/internal/usercontext"
)

func callerID(c *gin.Context) (string, bool) {
	userID, ok := usercontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return "", false
	}
	return userID, true
}

func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) CreateAnomalySet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req anomalysetdomain.StoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.UserID = userID

	id, err := s.anomalySetSvc.Store(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (s *Server) ListAnomalySets(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sets, err := s.anomalySetSvc.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anomaly_sets": sets})
}

func (s *Server) GetAnomalySet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	set, err := s.anomalySetSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if set == nil {
		AbortWithError(c, anomalysetdomain.ErrNotFound)
		return
	}
	// The store itself reads publicly; ownership is enforced here.
	if set.UserID != userID {
		AbortWithError(c, anomalysetdomain.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, set)
}

func (s *Server) DeleteAnomalySet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.anomalySetSvc.Delete(c.Request.Context(), id, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) CreateAnomalySetFromQuery(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req anomalysetdomain.CreateFromQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.UserID = userID

	id, err := s.anomalySetSvc.CreateFromQuery(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

type rerunSuccessResponse struct {
	Success bool `json:"success"`
	*rerundomain.RerunResponse
}

type rerunFailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Plan    string `json:"plan,omitempty"`
}

// RerunAnomalySet splits failures two ways: missing or foreign sets and
// concurrency conflicts abort with a transport error, while quota denials
// and upstream failures come back as a structured {"success":false} payload
// that callers branch on.
func (s *Server) RerunAnomalySet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req rerundomain.RerunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}
	req.AnomalySetID = id
	req.UserID = userID

	resp, err := s.rerunSvc.Rerun(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, anomalysetdomain.ErrNotFound),
			errors.Is(err, anomalysetdomain.ErrUnauthorized),
			errors.Is(err, anomalysetdomain.ErrInvalidUser),
			errors.Is(err, anomalysetdomain.ErrVersionConflict),
			errors.Is(err, rerundomain.ErrRerunInProgress):
			AbortWithError(c, err)
		case errors.Is(err, rerundomain.ErrQuotaDenied):
			var denied *rerundomain.QuotaDeniedError
			failure := rerunFailureResponse{Error: "quota_denied"}
			if errors.As(err, &denied) {
				failure.Error = denied.Reason
				failure.Plan = denied.Plan
			}
			c.JSON(http.StatusOK, failure)
		default:
			c.JSON(http.StatusOK, rerunFailureResponse{Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, rerunSuccessResponse{Success: true, RerunResponse: resp})
}
