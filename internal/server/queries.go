package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
)

func (s *Server) GetQuery(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	query, err := s.querySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if query.UserID != userID {
		// Do not reveal other users' queries.
		AbortWithError(c, querydomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, query)
}
