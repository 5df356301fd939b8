// Package dispatcher implements the matching core shared by the
// primary and standby dispatcher roles: fleet ingestion, the rider
// request/reply protocol, and assignment publication.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"taxidispatch/internal/broker"
	"taxidispatch/internal/fleet"
	"taxidispatch/internal/wire"
)

const riderTimeout = 5 * time.Second

// PersistenceSink receives outcomes of dispatch decisions for the
// optional best-effort service history/statistics store. It must never
// block the caller; a nil sink is a valid no-op.
type PersistenceSink interface {
	RecordAccepted(taxiID, riderID int, taxiPos, riderPos [2]int, at time.Time)
	RecordRejected()
}

// Dispatcher holds the shared state and behavior of §4.2: a fleet
// mirror, an active flag, and the rider-facing and broker-facing
// plumbing around them.
type Dispatcher struct {
	Fleet  *fleet.Fleet
	Logger *log.Logger
	Store  PersistenceSink // optional

	active atomic.Bool

	// Verbose gates the extra per-ACTUALIZACION logging in applyFrame.
	// It is safe to flip at runtime; a config.Watcher does exactly that
	// when log_verbose changes in the config file, without requiring a
	// restart (endpoint changes still do, since listeners are already
	// bound).
	Verbose atomic.Bool

	brokerFrontendAddr string

	riderMu       sync.Mutex
	riderListener net.Listener

	// testRaceHook, when non-nil, runs after FindNearest selects a taxi
	// and before TryAssign re-validates and commits it — the narrow
	// window a concurrent ACTUALIZACION can exploit to push the taxi
	// past eligibility first. Tests use it to make that race
	// deterministic instead of relying on goroutine scheduling; it is
	// never set outside a test.
	testRaceHook func()
}

// New constructs a dispatcher. initiallyActive is true for the
// primary and false for the standby.
func New(f *fleet.Fleet, initiallyActive bool, brokerFrontendAddr string, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{
		Fleet:              f,
		Logger:             logger,
		brokerFrontendAddr: brokerFrontendAddr,
	}
	d.active.Store(initiallyActive)
	return d
}

func (d *Dispatcher) IsActive() bool { return d.active.Load() }

// Activate implements §4.4 step 2: set active=true. It is idempotent;
// repeated calls are harmless. It does not itself bind the rider
// listener — callers (the activation handler) are responsible for
// calling ServeRiderRequests once, per §4.4 step 3.
func (d *Dispatcher) Activate() {
	d.active.Store(true)
}

// IngestLoop consumes REGISTRO/ACTUALIZACION frames from the broker
// backend and applies them to the fleet, forever, until ctx is
// cancelled. Connection failures are logged and retried; this is the
// Transport-error handling described in §7: log, drop, continue.
func (d *Dispatcher) IngestLoop(ctx context.Context, brokerBackendAddr string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := d.ingestOnce(ctx, brokerBackendAddr); err != nil {
			d.Logger.Printf("dispatcher: ingest connection error, retrying: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (d *Dispatcher) ingestOnce(ctx context.Context, brokerBackendAddr string) error {
	conn, err := wire.Dial("tcp", brokerBackendAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dialing broker backend: %w", err)
	}
	defer conn.Close()

	sub := struct {
		Prefixes []string `json:"prefixes"`
	}{Prefixes: []string{broker.TopicRegistro, broker.TopicActualizacion}}
	data, _ := json.Marshal(sub)
	if err := conn.WriteFrame(wire.Frame{Payload: data}, 5*time.Second); err != nil {
		return fmt.Errorf("sending subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame(0)
		if err != nil {
			return err
		}
		d.applyFrame(frame)
	}
}

func (d *Dispatcher) applyFrame(frame wire.Frame) {
	switch frame.Topic {
	case broker.TopicRegistro:
		var reg wire.Register
		if err := json.Unmarshal(frame.Payload, &reg); err != nil {
			d.Logger.Printf("dispatcher: malformed registro, dropped: %v", err)
			return
		}
		d.Fleet.Register(reg.ID, reg.Posicion, reg.Velocidad)
		d.Logger.Printf("dispatcher: registered taxi %d at %v", reg.ID, reg.Posicion)
	default:
		if frame.Topic == broker.TopicActualizacion {
			var upd wire.Update
			if err := json.Unmarshal(frame.Payload, &upd); err != nil {
				d.Logger.Printf("dispatcher: malformed actualizacion, dropped: %v", err)
				return
			}
			if known := d.Fleet.Update(upd.ID, upd.Posicion, upd.Ocupado, upd.Servicios); !known {
				d.Logger.Printf("dispatcher: actualizacion for unknown taxi %d, dropped", upd.ID)
			} else if d.Verbose.Load() {
				d.Logger.Printf("dispatcher: updated taxi %d -> pos=%v busy=%v services=%d", upd.ID, upd.Posicion, upd.Ocupado, upd.Servicios)
			}
		}
	}
}

// ServeRiderRequests binds addr and serves one connection at a time in
// strict req/rep pairing, per §4.2's dispatch protocol. It blocks
// until ctx is cancelled or the bind fails.
func (d *Dispatcher) ServeRiderRequests(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding rider endpoint %s: %w", addr, err)
	}

	d.riderMu.Lock()
	d.riderListener = ln
	d.riderMu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accepting rider connection: %w", err)
			}
		}
		d.handleRider(wire.NewConn(conn))
	}
}

// handleRider implements the seven-step protocol of §4.2 for a single
// request on a single connection, then closes it (the rider client
// contract in §4.5 is one request, one reply, then close).
func (d *Dispatcher) handleRider(conn *wire.Conn) {
	defer conn.Close()

	var req wire.RideRequest
	if err := wire.ReadJSON(conn, &req, riderTimeout); err != nil {
		d.Logger.Printf("dispatcher: rider request decode error: %v", err)
		return
	}

	reply := d.dispatchRide(req)
	reply.CorrelationID = req.CorrelationID
	if err := wire.WriteJSON(conn, reply, riderTimeout); err != nil {
		d.Logger.Printf("dispatcher: rider reply write error: %v", err)
	}
}

// dispatchRide runs steps 2-7 of §4.2's protocol and returns the reply
// to send to the rider. Step 6 (publishing the assignment) happens
// before the reply is constructed for return, preserving the ordering
// guarantee in §5: assignment publication precedes the rider reply.
func (d *Dispatcher) dispatchRide(req wire.RideRequest) wire.RideReply {
	if !d.IsActive() {
		d.Logger.Printf("dispatcher: rejecting request %s: inactive", req.CorrelationID)
		return wire.RideReply{Exito: false, Error: wire.ReasonInactive}
	}

	now := time.Now()
	taxiID, ok := d.Fleet.FindNearest(req.Posicion, now)
	if !ok {
		d.recordRejected()
		d.Logger.Printf("dispatcher: rejecting request %s: no eligible taxi", req.CorrelationID)
		return wire.RideReply{Exito: false, Error: wire.ReasonNoTaxi}
	}

	if d.testRaceHook != nil {
		d.testRaceHook()
	}

	taxiPos, ok := d.Fleet.TryAssign(taxiID, now)
	if !ok {
		d.recordRejected()
		d.Logger.Printf("dispatcher: rejecting request %s: taxi %d lost the assignment race", req.CorrelationID, taxiID)
		return wire.RideReply{Exito: false, Error: wire.ReasonRace}
	}

	d.publishAssignment(taxiID, req.IDUsuario, req.Posicion)
	d.recordAccepted(taxiID, req.IDUsuario, taxiPos, req.Posicion, now)
	d.Logger.Printf("dispatcher: request %s matched to taxi %d", req.CorrelationID, taxiID)

	return wire.RideReply{Exito: true, TaxiID: taxiID, PosTaxi: taxiPos}
}

func (d *Dispatcher) publishAssignment(taxiID, riderID int, riderPos [2]int) {
	asn := wire.Assignment{
		Tipo:       wire.TipoServicioAsignado,
		TaxiID:     taxiID,
		PosUsuario: riderPos,
		IDUsuario:  riderID,
	}
	data, err := json.Marshal(asn)
	if err != nil {
		d.Logger.Printf("dispatcher: encoding assignment: %v", err)
		return
	}
	conn, err := wire.Dial("tcp", d.brokerFrontendAddr, 2*time.Second)
	if err != nil {
		d.Logger.Printf("dispatcher: publishing assignment: %v", err)
		return
	}
	defer conn.Close()
	if err := conn.WriteFrame(wire.Frame{Payload: data}, 2*time.Second); err != nil {
		d.Logger.Printf("dispatcher: publishing assignment: %v", err)
	}
}

func (d *Dispatcher) recordAccepted(taxiID, riderID int, taxiPos, riderPos [2]int, at time.Time) {
	if d.Store == nil {
		return
	}
	d.Store.RecordAccepted(taxiID, riderID, taxiPos, riderPos, at)
}

func (d *Dispatcher) recordRejected() {
	if d.Store == nil {
		return
	}
	d.Store.RecordRejected()
}
