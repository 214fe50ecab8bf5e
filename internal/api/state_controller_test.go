package api_test

import (
	"net/http"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateController_List(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []api.StateInfo `json:"data"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Data, 6)
	assert.Equal(t, "PLANNED", resp.Data[0].Status)

	for _, st := range resp.Data {
		if st.Terminal {
			assert.Empty(t, st.Transitions, st.Status)
		} else {
			assert.NotEmpty(t, st.Transitions, st.Status)
		}
	}
}

func TestStateController_Get(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states/IN_PROGRESS", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.StateInfo `json:"data"`
	}
	decode(t, w, &resp)
	assert.False(t, resp.Data.Terminal)

	targets := make([]string, 0, len(resp.Data.Transitions))
	for _, tr := range resp.Data.Transitions {
		targets = append(targets, tr.To)
	}
	assert.ElementsMatch(t, []string{"FINISHED", "ON_HOLD", "CANCELLED"}, targets)

	w = doJSON(t, router, http.MethodGet, "/api/v1/states/UNKNOWN", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateController_Transitions(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states/transitions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []api.TransitionInfo `json:"data"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Data, 10)

	for _, tr := range resp.Data {
		if tr.To == "CANCELLED" {
			assert.True(t, tr.RequiresConfirmation, tr.From)
			assert.Contains(t, tr.Conditions, "authorized_cancellation")
		}
	}
}
