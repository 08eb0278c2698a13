package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/search"
	"github.com/meghashyamc/glimpse/validation"
)

type SearchRequest struct {
	Query string `form:"query" json:"query" validate:"required,valid_query,min=1,max=1000"`
}

type SearchResponse struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

func SetupSearch(router *gin.Engine, logger logger.Logger, searcher *search.Service, validator *validation.Validator) {
	router.GET("/search", handleSearch(searcher, logger, validator))

}

func handleSearch(searcher *search.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		// Each request is independent; incremental query state only pays
		// off inside a single embedding process, not across HTTP calls.
		results, _ := searcher.Search(request.Query, nil)
		if results == nil {
			results = []search.Result{}
		}

		searchResponse := SearchResponse{
			Results: results,
			Count:   len(results),
		}

		writeResponse(c, searchResponse, http.StatusOK, nil)
	}
}
