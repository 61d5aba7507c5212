package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simnetlab/simnet/sim"
)

type countingSink struct {
	count int
}

func (s *countingSink) LogMetric(
	_ context.Context, _ uint32, _ uint64, _ float64,
) error {
	return nil
}

func (s *countingSink) TotalRecordCount() (int, error) {
	return s.count, nil
}

func TestStatusEndpoint(t *testing.T) {
	engine := sim.NewSerialEngine()

	m := New(engine, nil)
	port, err := m.StartServer()
	require.NoError(t, err)
	defer m.Stop()

	rsp, err := http.Get(
		fmt.Sprintf("http://localhost:%d/api/status", port))
	require.NoError(t, err)
	defer rsp.Body.Close()

	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var status struct {
		Now     float64 `json:"now"`
		State   string  `json:"state"`
		Handled uint64  `json:"handled"`
		Pending int     `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&status))

	assert.Equal(t, 0.0, status.Now)
	assert.Equal(t, "built", status.State)
	assert.Zero(t, status.Handled)
	assert.Zero(t, status.Pending)
}

func TestStatusReportsTelemetryRecords(t *testing.T) {
	m := New(sim.NewSerialEngine(), &countingSink{count: 17})
	port, err := m.StartServer()
	require.NoError(t, err)
	defer m.Stop()

	rsp, err := http.Get(
		fmt.Sprintf("http://localhost:%d/api/status", port))
	require.NoError(t, err)
	defer rsp.Body.Close()

	var status struct {
		Records int `json:"telemetry_records"`
	}
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&status))
	assert.Equal(t, 17, status.Records)
}

func TestNowEndpoint(t *testing.T) {
	m := New(sim.NewSerialEngine(), nil)
	port, err := m.StartServer()
	require.NoError(t, err)
	defer m.Stop()

	rsp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/now", port))
	require.NoError(t, err)
	defer rsp.Body.Close()

	var now struct {
		Now float64 `json:"now"`
	}
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&now))
	assert.Equal(t, 0.0, now.Now)
}

func TestRejectsLowPort(t *testing.T) {
	m := New(sim.NewSerialEngine(), nil).WithPortNumber(80)
	port, err := m.StartServer()
	require.NoError(t, err)
	defer m.Stop()

	assert.NotEqual(t, 80, port)
}
