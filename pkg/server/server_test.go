package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/align"
	"alignd/pkg/axes"
	"alignd/pkg/log"
	"alignd/pkg/metrics"
	"alignd/pkg/motion"
)

func newTestServer(t *testing.T) (*Server, *align.Controller) {
	t.Helper()
	logger := log.New("test")
	logger.SetWriter(io.Discard)

	pos := motion.NewSimPositioner(map[string]motion.Constraint{
		"x": {Min: 0, Max: 10, Step: 0.01},
		"y": {Min: 0, Max: 10, Step: 0.01},
	})
	sig := &motion.GaussianSignal{
		Positioner: pos,
		Amplitude:  100,
		Background: 5,
		Center:     map[string]float64{"x": 4, "y": 6},
		Width:      map[string]float64{"x": 2, "y": 2},
	}
	space, err := axes.Build(pos, logger)
	require.NoError(t, err)
	ctrl := align.NewController(pos, sig, space, align.NewStore(logger), logger)
	require.NoError(t, ctrl.Configure(align.Settings{
		AxisRanges: map[string]axes.Range{
			"x": {Min: 0, Max: 10, Step: 1},
			"y": {Min: 0, Max: 10, Step: 1},
		},
	}))

	reg := metrics.NewRegistry()
	ctrl.SetMetrics(metrics.NewAlignMetrics(reg))
	return New(Config{Addr: ":0", Controller: ctrl, Registry: reg, Logger: logger}), ctrl
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := ts.Client().Post(ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var reply statusReply
	resp := getJSON(t, ts, "/status", &reply)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", reply.Status.State.String())
	assert.Contains(t, reply.Positions, "x")
}

func TestStartCancelFlow(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postJSON(t, ts, "/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A second start conflicts.
	resp = postJSON(t, ts, "/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts, "/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", ctrl.Status().State.String())
}

func TestMoveEndpoint(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postJSON(t, ts, "/move", map[string]float64{"x": 3, "y": 2})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.0, ctrl.Positions()["x"])

	resp = postJSON(t, ts, "/move", map[string]float64{"rotator": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlignmentEndpoints(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postJSON(t, ts, "/move", map[string]float64{"x": 4, "y": 6})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, "/alignments/peak/save", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Alignments []string `json:"alignments"`
	}
	getJSON(t, ts, "/alignments", &listing)
	assert.Equal(t, []string{"peak"}, listing.Alignments)

	resp = postJSON(t, ts, "/move", map[string]float64{"x": 1, "y": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, "/alignments/peak/recall", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4.0, ctrl.Positions()["x"])
	assert.Equal(t, 6.0, ctrl.Positions()["y"])

	resp = postJSON(t, ts, "/alignments/ghost/recall", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	require.NoError(t, ctrl.Start())
	require.NoError(t, ctrl.Cancel())

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "alignd_runs_started_total")
	assert.Contains(t, string(body), "alignd_runs_cancelled_total")
}

func TestWebSocketInitialFrame(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame statusReply
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "idle", frame.Status.State.String())
	assert.Contains(t, frame.Positions, "y")
}
