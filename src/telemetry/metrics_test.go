package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRound(t *testing.T) {
	m := NewMetrics("chaos")

	m.ObserveRound("1", &mergecommit.Outcome{
		Phase:          mergecommit.PhaseCommit,
		CompletionSlot: 42,
		OffSlot:        60,
		HasIndex:       true,
		NodeCount:      3,
		Config:         2,
		Overflowed:     []join.NodeID{11, 12},
	})
	m.ObserveRound("1", &mergecommit.Outcome{
		Phase:   mergecommit.PhaseMerge,
		OffSlot: 349,
		Config:  2,
	})
	m.ObserveRound("2", &mergecommit.Outcome{
		Phase:    mergecommit.PhaseCommit,
		OffSlot:  80,
		HasIndex: true,
		Joined:   true,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("1", OutcomeCommit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("1", OutcomeMerge)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("2", OutcomeIncomplete)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Member.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinsTotal.WithLabelValues("2")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OverflowsTotal.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Config.WithLabelValues("1")))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("chaos")
	m.ObserveRound(Label(7), &mergecommit.Outcome{Phase: mergecommit.PhaseCommit, CompletionSlot: 30})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `chaos_rounds_total{node="7",outcome="commit"} 1`))
}

func TestBuildInfo(t *testing.T) {
	m := NewMetrics("chaos")
	m.SetBuildInfo("0.1.0")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildInfo.WithLabelValues("0.1.0")))
}
