// Package monitor exposes a running simulation over HTTP so progress and
// resource usage can be observed from outside the process.
package monitor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/simnetlab/simnet/sim"
	"github.com/simnetlab/simnet/telemetry"
)

// Monitor turns a simulation into a small status server.
type Monitor struct {
	engine     sim.Engine
	sink       telemetry.Sink
	portNumber int

	listener net.Listener
	server   *http.Server
	log      *logrus.Entry
}

// New creates a monitor for the given engine. The telemetry sink may be nil
// when the simulation records no metrics.
func New(engine sim.Engine, sink telemetry.Sink) *Monitor {
	return &Monitor{
		engine: engine,
		sink:   sink,
		log:    logrus.WithField("component", "monitor"),
	}
}

// WithPortNumber sets the port the server listens on. Ports below 1000 are
// rejected and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.log.Warnf(
			"port %d not allowed for the monitor, using a random port",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// StartServer begins serving in the background and returns the bound port.
func (m *Monitor) StartServer() (int, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/resource", m.listResources)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return 0, fmt.Errorf("monitor listen: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{Handler: r}

	port := listener.Addr().(*net.TCPAddr).Port
	m.log.Infof("monitoring simulation with http://localhost:%d", port)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			m.log.WithError(err).Error("monitor server stopped")
		}
	}()

	return port, nil
}

// Stop shuts the server down.
func (m *Monitor) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

type statusRsp struct {
	Now     float64 `json:"now"`
	State   string  `json:"state"`
	Handled uint64  `json:"handled"`
	Pending int     `json:"pending"`
	Records int     `json:"telemetry_records"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	rsp := statusRsp{
		Now:     float64(m.engine.CurrentTime()),
		State:   m.engine.State().String(),
		Handled: m.engine.Handled(),
		Pending: m.engine.Pending(),
	}

	if m.sink != nil {
		count, err := m.sink.TotalRecordCount()
		if err != nil {
			m.respondErr(w, err)
			return
		}
		rsp.Records = count
	}

	m.respondJSON(w, rsp)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.engine.CurrentTime())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.respondErr(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.respondErr(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		m.respondErr(w, err)
		return
	}

	m.respondJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.WithError(err).Error("write response")
	}
}

func (m *Monitor) respondErr(w http.ResponseWriter, err error) {
	m.log.WithError(err).Error("monitor request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
