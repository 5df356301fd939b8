// Package healthmonitor implements the external health monitor of
// §4.3: it probes the primary dispatcher and, on sustained failure,
// notifies the standby to activate exactly once per outage.
package healthmonitor

import (
	"log"
	"sync"
	"time"

	"taxidispatch/internal/wire"
)

const (
	ProbeInterval = 1 * time.Second
	ProbeTimeout  = 1 * time.Second
)

// Prober abstracts the request/reply round trip to a dispatcher's
// health socket, so the state machine in Monitor can be tested without
// a real network connection.
type Prober interface {
	// Probe sends payload and returns the peer's reply, or an error on
	// timeout, refusal, or any transport failure.
	Probe(payload string, timeout time.Duration) (reply string, err error)
}

// netProber is the production Prober, dialing addr fresh for every
// probe (the primary's probe-reply endpoint accepts one connection per
// ping, matching the dispatcher's ServeProbeReplies).
type netProber struct {
	addr string
}

func NewNetProber(addr string) Prober {
	return &netProber{addr: addr}
}

func (p *netProber) Probe(payload string, timeout time.Duration) (string, error) {
	conn, err := wire.Dial("tcp", p.addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if err := wire.WriteJSON(conn, payload, timeout); err != nil {
		return "", err
	}
	var reply string
	if err := wire.ReadJSON(conn, &reply, timeout); err != nil {
		return "", err
	}
	return reply, nil
}

// Monitor holds the primary_up/standby_notified state machine of §4.3.
type Monitor struct {
	primaryProber Prober
	standbyNotify Prober
	logger        *log.Logger

	mu               sync.Mutex
	primaryUp        bool
	standbyNotified  bool
}

func New(primaryProber, standbyNotify Prober, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		primaryProber: primaryProber,
		standbyNotify: standbyNotify,
		logger:        logger,
		primaryUp:     true,
	}
}

// Tick performs one probe cycle: ping the primary, and while it is
// down notify the standby if it has not yet acknowledged an activation
// for this outage (so a failed notification is retried on the next
// tick); on an up transition reset standby_notified so a future outage
// can be notified again.
func (m *Monitor) Tick() {
	_, err := m.primaryProber.Probe("ping", ProbeTimeout)
	up := err == nil

	m.mu.Lock()
	wasUp := m.primaryUp
	m.primaryUp = up
	notified := m.standbyNotified
	m.mu.Unlock()

	switch {
	case !up:
		if wasUp {
			m.logger.Printf("healthmonitor: primary down")
		}
		if !notified {
			m.notifyStandby()
		}
	case !wasUp && up:
		m.logger.Printf("healthmonitor: primary recovered")
		m.mu.Lock()
		m.standbyNotified = false
		m.mu.Unlock()
	}
}

func (m *Monitor) notifyStandby() {
	reply, err := m.standbyNotify.Probe("activate", ProbeTimeout)
	if err != nil {
		m.logger.Printf("healthmonitor: notifying standby failed, will retry next tick: %v", err)
		return
	}
	if reply != "OK" {
		m.logger.Printf("healthmonitor: standby replied unexpected %q to activate", reply)
		return
	}
	m.mu.Lock()
	m.standbyNotified = true
	m.mu.Unlock()
}

// PrimaryUp reports the monitor's current view of the primary.
func (m *Monitor) PrimaryUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primaryUp
}

// StandbyNotified reports whether the standby has been notified for
// the current outage (reset on recovery).
func (m *Monitor) StandbyNotified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.standbyNotified
}

// Run ticks every ProbeInterval until stop is closed.
func (m *Monitor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}
