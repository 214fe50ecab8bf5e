package api_test

import (
	"net/http"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryController_ListPagination(t *testing.T) {
	router := setupRouter(t, nil)

	for _, opNo := range []string{"0030", "0010", "0020"} {
		w := doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", opNo, "PLANNED"))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/operations?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination api.PaginationInfo       `json:"pagination"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "0010", resp.Data[0]["operation_no"])
	assert.Equal(t, "0020", resp.Data[1]["operation_no"])
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPage)

	w = doJSON(t, router, http.MethodGet, "/api/v1/operations?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "0030", resp.Data[0]["operation_no"])
}

func TestQueryController_ListDefaults(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination api.PaginationInfo       `json:"pagination"`
	}
	decode(t, w, &resp)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 50, resp.Pagination.PageSize)

	w = doJSON(t, router, http.MethodGet, "/api/v1/operations?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryController_ListFilterByStatus(t *testing.T) {
	router := setupRouter(t, nil)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", "0010", "PLANNED")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", "0020", "RELEASED")).Code)

	w := doJSON(t, router, http.MethodGet, "/api/v1/operations?status=RELEASED", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "0020", resp.Data[0]["operation_no"])
}

func TestQueryController_Summary(t *testing.T) {
	router := setupRouter(t, nil)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", "0010", "PLANNED")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", "0020", "RELEASED")).Code)

	w := doJSON(t, router, http.MethodGet, "/api/v1/operations/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, float64(2), data["total_operations"])

	byStatus, ok := data["by_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), byStatus["PLANNED"])
	assert.Equal(t, float64(1), byStatus["RELEASED"])

	byWorkplace, ok := data["by_workplace"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), byWorkplace["LASER-01"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/operations/summary?date_filter=last_year", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQueryController_Analyze(t *testing.T) {
	router := setupRouter(t, nil)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/operations", createBody("WO-1", "0010", "RELEASED")).Code)

	w := doJSON(t, router, http.MethodGet, operationPath+"/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.NotNil(t, data["operation"])
	assert.NotNil(t, data["metrics"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/operations/WO-404/1/0010/analysis", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/operations/WO-404/1/0010/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
