package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unimplemented satisfies ServerInterface; routes are only inspected
type unimplemented struct {
	ServerInterface
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for _, name := range []string{"bearerAuth", "cronAuth", "twilioSignature"} {
		assert.Contains(t, doc.Components.SecuritySchemes, name)
	}
}

func TestRegisteredRoutesAreDocumented(t *testing.T) {
	gin.SetMode(gin.TestMode)
	doc, err := GetSwagger()
	require.NoError(t, err)

	r := gin.New()
	RegisterHandlers(r, unimplemented{})

	operations := 0
	for _, p := range doc.Paths.Map() {
		operations += len(p.Operations())
	}

	routes := r.Routes()
	assert.Len(t, routes, operations)

	for _, route := range routes {
		path := strings.ReplaceAll(route.Path, ":id", "{id}")
		item := doc.Paths.Value(path)
		if assert.NotNil(t, item, "path %s", path) {
			assert.NotNil(t, item.GetOperation(route.Method), "%s %s", route.Method, path)
		}
	}
}

func TestWrapperRejectsMalformedPathID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHandlers(r, unimplemented{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks/not-a-uuid/done", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), CodeValidation)
}
