// Package clients holds reference implementations of the external
// collaborators described in §4.5: a taxi that registers and reports
// position/occupancy, and a rider that issues one ride request. Both
// are contracts-only drivers exercising the wire schema; neither
// participates in dispatch decisions.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"taxidispatch/internal/broker"
	"taxidispatch/internal/wire"
)

// Taxi is a minimal external-collaborator taxi client.
type Taxi struct {
	ID                int
	Position          [2]int
	Speed             int
	ServicesDone      int
	Busy              bool
	BrokerFrontend    string
	BrokerBackend     string
	Logger            *log.Logger
}

func NewTaxi(id int, position [2]int, speed int, brokerFrontend, brokerBackend string, logger *log.Logger) *Taxi {
	if logger == nil {
		logger = log.Default()
	}
	return &Taxi{ID: id, Position: position, Speed: speed, BrokerFrontend: brokerFrontend, BrokerBackend: brokerBackend, Logger: logger}
}

// Register publishes the registro message once, per §4.5.
func (t *Taxi) Register(ctx context.Context) error {
	reg := wire.Register{Tipo: wire.TipoRegistro, ID: t.ID, Posicion: t.Position, Velocidad: t.Speed}
	return t.publish(reg)
}

// PublishUpdate publishes an actualizacion message reflecting the
// taxi's current state.
func (t *Taxi) PublishUpdate() error {
	upd := wire.Update{
		Tipo:      wire.TipoActualizacion,
		ID:        t.ID,
		Posicion:  t.Position,
		Ocupado:   t.Busy,
		Servicios: t.ServicesDone,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	return t.publish(upd)
}

func (t *Taxi) publish(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	conn, err := wire.Dial("tcp", t.BrokerFrontend, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to broker frontend: %w", err)
	}
	defer conn.Close()
	return conn.WriteFrame(wire.Frame{Payload: data}, 2*time.Second)
}

// ListenForAssignments subscribes to the taxi's own per-taxi topic and
// invokes onAssignment for each servicio_asignado it receives while
// not already busy, per §4.5's taxi client contract. It blocks until
// ctx is cancelled or the connection fails.
func (t *Taxi) ListenForAssignments(ctx context.Context, onAssignment func(wire.Assignment)) error {
	conn, err := wire.Dial("tcp", t.BrokerBackend, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to broker backend: %w", err)
	}
	defer conn.Close()

	topic := broker.TaxiTopic(t.ID)
	sub := struct {
		Prefixes []string `json:"prefixes"`
	}{Prefixes: []string{topic}}
	data, _ := json.Marshal(sub)
	if err := conn.WriteFrame(wire.Frame{Payload: data}, 5*time.Second); err != nil {
		return fmt.Errorf("subscribing: %w", err)
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
		var asn wire.Assignment
		if err := json.Unmarshal(frame.Payload, &asn); err != nil {
			t.Logger.Printf("taxi %d: malformed assignment, dropped: %v", t.ID, err)
			continue
		}
		if t.Busy {
			continue
		}
		onAssignment(asn)
	}
}

// CompleteService marks the current service done, moves to the given
// idle position, and publishes the resulting actualizacion — the
// eventual ocupado=false report §4.5 requires. It leaves the service
// counter as AcceptAssignment already bumped it.
func (t *Taxi) CompleteService(idlePosition [2]int) error {
	t.Position = idlePosition
	t.Busy = false
	return t.PublishUpdate()
}

// AcceptAssignment marks the taxi busy and bumps the service counter,
// then publishes the resulting actualizacion.
func (t *Taxi) AcceptAssignment() error {
	t.Busy = true
	t.ServicesDone++
	return t.PublishUpdate()
}
