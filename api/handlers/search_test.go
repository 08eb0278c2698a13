package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var searchHandlerTestCases = []testCase{
	{
		name:           "NoQuery",
		queryParams:    map[string]string{},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "EmptyQuery",
		queryParams:    map[string]string{"query": ""},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "BlankQuery",
		queryParams:    map[string]string{"query": "   "},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "QueryTooLong",
		queryParams:    map[string]string{"query": strings.Repeat("a", 1001)},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "ExactWord",
		queryParams:    map[string]string{"query": "loyal"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"Dogs"},
	},
	{
		name:           "FrontmatterTitle",
		queryParams:    map[string]string{"query": "purr"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"About Cats"},
	},
	{
		name:           "HTMLContent",
		queryParams:    map[string]string{"query": "circles"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"Fish"},
	},
	{
		name:           "CaseInsensitive",
		queryParams:    map[string]string{"query": "LOYAL"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"Dogs"},
	},
	{
		name:           "PrefixOfWord",
		queryParams:    map[string]string{"query": "circ"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"Fish"},
	},
	{
		name:           "FuzzyMatch",
		queryParams:    map[string]string{"query": "lotal"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{"Dogs"},
	},
	{
		name:           "NoResults",
		queryParams:    map[string]string{"query": "xylophone"},
		expectedStatus: http.StatusOK,
		expectedTitles: []string{},
	},
}

func TestHandleSearch(t *testing.T) {
	assert := require.New(t)
	router := setupTestServer(t, assert)

	for _, testCase := range searchHandlerTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(router, assert, http.MethodGet, "/search", testCase.queryParams)
			responseBytes := w.Body.Bytes()
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", string(responseBytes)))

			if testCase.expectedStatus != http.StatusOK {
				return
			}

			searchResponse := decodeSearchResponse(assert, responseBytes)
			assert.Equal(len(searchResponse.Results), searchResponse.Count)

			actualTitles := make([]string, len(searchResponse.Results))
			for i, result := range searchResponse.Results {
				actualTitles[i] = result.Title
			}
			assert.Equal(testCase.expectedTitles, actualTitles)
		})
	}
}

func TestHandleSearchReturnsExcerpts(t *testing.T) {
	assert := require.New(t)
	router := setupTestServer(t, assert)

	w := makeTestHTTPRequest(router, assert, http.MethodGet, "/search", map[string]string{"query": "walks"})
	assert.Equal(http.StatusOK, w.Code)

	searchResponse := decodeSearchResponse(assert, w.Body.Bytes())
	assert.Len(searchResponse.Results, 1)
	assert.NotEmpty(searchResponse.Results[0].Excerpts)

	excerpt := searchResponse.Results[0].Excerpts[0]
	assert.NotEmpty(excerpt.Highlights)
	span := excerpt.Highlights[0]
	assert.Equal("walks", strings.ToLower(excerpt.Text[span.Start:span.End]))
}
