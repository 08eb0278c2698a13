package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meghashyamc/glimpse/api/handlers"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/search"
	"github.com/meghashyamc/glimpse/validation"
)

func setupRoutes(router *gin.Engine, logger logger.Logger, searcher *search.Service, validator *validation.Validator) {
	router.GET("/health", health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.SetupSearch(router, logger, searcher, validator)

}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter() *gin.Engine {
	router := gin.Default()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
