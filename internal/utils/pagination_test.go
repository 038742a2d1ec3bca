package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryContext(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return c
}

func TestGetPaginationParams(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := GetPaginationParams(newQueryContext(""))
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, DefaultPageSize, p.PageSize)
		assert.Equal(t, "desc", p.Order)
	})

	t.Run("clamps out of range values", func(t *testing.T) {
		p := GetPaginationParams(newQueryContext("page=-3&page_size=100000&order=sideways"))
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, MaxPageSize, p.PageSize)
		assert.Equal(t, "desc", p.Order)
	})
}

func TestWindow(t *testing.T) {
	p := &PaginationParams{Page: 2, PageSize: 10}

	start, end := p.Window(25)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end = p.Window(15)
	assert.Equal(t, 10, start)
	assert.Equal(t, 15, end)

	start, end = p.Window(5)
	assert.Equal(t, 5, start)
	assert.Equal(t, 5, end)
}

func TestCreatePaginationMeta(t *testing.T) {
	meta := CreatePaginationMeta(&PaginationParams{Page: 2, PageSize: 10}, 25)

	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrevious)
	require.NotNil(t, meta.NextPage)
	assert.Equal(t, 3, *meta.NextPage)
	require.NotNil(t, meta.PreviousPage)
	assert.Equal(t, 1, *meta.PreviousPage)
}
