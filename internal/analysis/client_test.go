package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "hedgedesk/pkg/http"
	"hedgedesk/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Endpoints(t *testing.T) {
	var lotSize float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/update_lotsize":
			var body map[string]float64
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			lotSize = body["lot_size"]
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/clear_scenario":
			_, _ = w.Write([]byte(`{"status":"cleared"}`))
		case "/run_simulation":
			_, _ = w.Write([]byte(`{"expected_pnl":12.5,"paths":1000}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", apphttp.Options{}, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, c.UpdateLotSize(ctx, 0.0001))
	assert.Equal(t, 0.0001, lotSize)
	assert.Error(t, c.UpdateLotSize(ctx, 0))

	var notified int
	c.Subscribe(func(SimulationResult) { notified++ })

	res, err := c.RunSimulation(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expected_pnl":12.5,"paths":1000}`, string(res))
	assert.JSONEq(t, string(res), string(c.LatestResult()))

	require.NoError(t, c.ClearScenario(ctx))
	assert.Nil(t, c.LatestResult())
	assert.Equal(t, 2, notified)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewClient(server.URL, apphttp.Options{}, logging.NewNopLogger())
	_, err := c.RunSimulation(context.Background())

	var apiErr *apphttp.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Nil(t, c.LatestResult())
}
