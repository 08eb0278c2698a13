// Common test helpers
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/index"
	"github.com/meghashyamc/glimpse/services/search"
	"github.com/meghashyamc/glimpse/validation"
)

var testFiles = map[string]string{
	"cats.md":   "---\ntitle: \"About Cats\"\n---\nCats purr and chase mice all day.\n",
	"dogs.txt":  "Dogs are loyal and love long walks in the park.",
	"fish.html": `<html><body><main><p>Fish swim in slow circles.</p></main></body></html>`,
}

type testCase struct {
	name           string
	queryParams    map[string]string
	expectedStatus int
	expectedTitles []string
}

func setupTestServer(t *testing.T, assert *require.Assertions) *gin.Engine {
	tempDir := t.TempDir()
	for name, content := range testFiles {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}

	cfg := &config.Config{
		Input: config.InputConfig{
			BaseDirectory:     tempDir,
			TitleBoost:        2.0,
			MinimumWordLength: 1,
			Files: []config.FileConfig{
				{Path: "cats.md", URL: "/cats"},
				{Path: "dogs.txt", Title: "Dogs", URL: "/dogs"},
				{Path: "fish.html", Title: "Fish", URL: "/fish", HTMLSelector: "main"},
			},
		},
		Output: config.OutputConfig{
			ExcerptRadius:     80,
			ExcerptsPerResult: 5,
			ResultCap:         20,
			FuzzyDistance:     2,
			UnionFallback:     true,
			ExactBonus:        4.0,
			EditPenalty:       1.0,
			PrefixPenalty:     0.5,
			FrequencyWeight:   0.25,
		},
	}

	testLogger := logger.New()

	blob, _, err := index.New(testLogger, cfg, nil).Build(context.Background())
	assert.NoError(err, "could not build test index")
	reader, err := indexfile.Load(blob)
	assert.NoError(err, "could not load test index")

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupSearch(router, testLogger, search.New(testLogger, reader), validator)

	return router
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, queryParams map[string]string) *httptest.ResponseRecorder {

	w := httptest.NewRecorder()

	req, err := http.NewRequest(method, endpoint, nil)
	assert.NoError(err)

	if len(queryParams) > 0 {
		values := req.URL.Query()
		for key, value := range queryParams {
			values.Set(key, value)
		}
		req.URL.RawQuery = values.Encode()
	}

	router.ServeHTTP(w, req)

	return w
}

func decodeSearchResponse(assert *require.Assertions, body []byte) SearchResponse {
	var envelope struct {
		Data   SearchResponse `json:"data"`
		Errors []string       `json:"errors"`
	}
	err := json.Unmarshal(body, &envelope)
	assert.NoError(err, "could not unmarshal gotten response")
	return envelope.Data
}
