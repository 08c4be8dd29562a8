package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/flood"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/mosaicnetworks/chaos/src/node"
	"github.com/mosaicnetworks/chaos/src/reducer"
	"github.com/mosaicnetworks/chaos/src/store"
	"github.com/mosaicnetworks/chaos/src/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constApp struct{ b byte }

func (a constApp) Proposal(round uint16) []byte         { return []byte{a.b} }
func (a constApp) Commit(o *mergecommit.Outcome) error { return nil }

func newTestNodes(t *testing.T, cacheSize int) ([]*node.Node, *telemetry.Metrics) {
	conf := node.TestConfig(t)
	conf.Params.MaxNodeCount = 4
	medium := flood.NewMedium(flood.NewLossyChannel(0, 1), nil)
	metrics := telemetry.NewMetrics("chaos")

	nodes := []*node.Node{}
	for i, id := range []uint16{1, 5} {
		n, err := node.NewNode(conf, join.NodeID(id), "node"+string(rune('0'+i)), i == 0,
			medium.Attach(), reducer.Max{N: 1}, store.NewInmemStore(cacheSize), constApp{byte(id)}, metrics)
		require.NoError(t, err)
		require.NoError(t, n.Init())
		nodes = append(nodes, n)
	}
	return nodes, metrics
}

func newTestService(t *testing.T) (*Service, []*node.Node) {
	nodes, metrics := newTestNodes(t, 10)

	for _, n := range nodes {
		n.RunAsync(context.Background(), 2)
	}
	for _, n := range nodes {
		require.NoError(t, n.Wait())
	}

	logger := common.NewTestEntry(t, logrus.DebugLevel, "service")
	return NewService("127.0.0.1:0", nodes, metrics, logger), nodes
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStats(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "Member", stats["node1"]["state"])
	assert.Equal(t, "2", stats["node0"]["node_count"])

	rec = get(t, s.Handler(), "/node/5")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/node/6")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s.Handler(), "/node/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRounds(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s.Handler(), "/rounds/5?since=0")
	require.Equal(t, http.StatusOK, rec.Code)

	var rounds []store.RoundRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rounds))
	require.Len(t, rounds, 1)
	assert.Equal(t, int64(1), rounds[0].Seq)
	assert.True(t, rounds[0].Committed)
	assert.Equal(t, []byte{5}, rounds[0].Value)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chaos_rounds_total")
}

func TestQueriesWhileRunning(t *testing.T) {
	nodes, metrics := newTestNodes(t, 64)
	s := NewService("127.0.0.1:0", nodes, metrics, common.NewTestEntry(t, logrus.InfoLevel, "service"))

	for _, n := range nodes {
		n.RunAsync(context.Background(), 30)
	}

	for i := 0; i < 200; i++ {
		assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/rounds/5").Code)
		assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/stats").Code)
	}

	for _, n := range nodes {
		require.NoError(t, n.Wait())
	}

	rec := get(t, s.Handler(), "/rounds/5?since=19")
	require.Equal(t, http.StatusOK, rec.Code)
	var rounds []store.RoundRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rounds))
	require.Len(t, rounds, 10)
	assert.Equal(t, int64(20), rounds[0].Seq)
}
