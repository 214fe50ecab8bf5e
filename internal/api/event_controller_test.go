package api_test

import (
	"net/http"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventBody(action, workplace string) map[string]interface{} {
	return map[string]interface{}{
		"action_type":    action,
		"order_no":       "WO-1",
		"asset_id":       1,
		"operation_no":   "0010",
		"workplace_name": workplace,
		"operation_data": map[string]interface{}{"qty": 5},
	}
}

func TestEventController_CreateAndGet(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/events", eventBody("REPORT_QUANTITY", "LASER-01"))
	require.Equal(t, http.StatusCreated, w.Code)
	data := dataMap(t, w)
	id, ok := data["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "REPORT_QUANTITY", data["action_type"])
	// 用户取自请求头
	assert.Equal(t, "operator-1", data["user_id"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, dataMap(t, w)["id"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/missing-event", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/bad%20id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventController_CreateInvalid(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/events", eventBody("EXPLODE", "LASER-01"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var errResp api.ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "validation_failed", errResp.Type)

	w = doJSON(t, router, http.MethodPost, "/api/v1/events", map[string]interface{}{"action_type": "START"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventController_List(t *testing.T) {
	router := setupRouter(t, nil)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/events", eventBody("START", "LASER-01")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/events", eventBody("STOP", "LASER-01")).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/events", eventBody("START", "PRESS-02")).Code)

	w := doJSON(t, router, http.MethodGet, "/api/v1/events?action_type=START", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, float64(2), data["total"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/events/workplace/LASER-01?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = dataMap(t, w)
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["events"], 1)

	w = doJSON(t, router, http.MethodGet, "/api/v1/events?action_type=EXPLODE", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
