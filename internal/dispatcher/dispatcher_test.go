package dispatcher

import (
	"log"
	"testing"

	"taxidispatch/internal/fleet"
	"taxidispatch/internal/wire"
)

func newTestDispatcher(active bool) *Dispatcher {
	return New(fleet.New(), active, "127.0.0.1:0", log.New(testDiscard{}, "", 0))
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatchRideInactiveStandbyRejectsImmediately(t *testing.T) {
	d := newTestDispatcher(false)
	d.Fleet.Register(1, [2]int{0, 0}, 1)

	reply := d.dispatchRide(wire.RideRequest{IDUsuario: 1, Posicion: [2]int{0, 0}})
	if reply.Exito {
		t.Fatalf("expected inactive dispatcher to reject the request")
	}
	if reply.Error != wire.ReasonInactive {
		t.Fatalf("expected reason %q, got %q", wire.ReasonInactive, reply.Error)
	}
}

func TestDispatchRideNoTaxiAvailable(t *testing.T) {
	d := newTestDispatcher(true)
	reply := d.dispatchRide(wire.RideRequest{IDUsuario: 1, Posicion: [2]int{0, 0}})
	if reply.Exito || reply.Error != wire.ReasonNoTaxi {
		t.Fatalf("expected no_taxi rejection, got %+v", reply)
	}
}

func TestDispatchRideSingleMatch(t *testing.T) {
	d := newTestDispatcher(true)
	d.Fleet.Register(1, [2]int{5, 5}, 2)

	reply := d.dispatchRide(wire.RideRequest{IDUsuario: 0, Posicion: [2]int{5, 7}})
	if !reply.Exito || reply.TaxiID != 1 || reply.PosTaxi != [2]int{5, 5} {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestDispatchRideLosesRaceToConcurrentActualizacion(t *testing.T) {
	d := newTestDispatcher(true)
	d.Fleet.Register(1, [2]int{5, 5}, 2)

	// Simulate an ACTUALIZACION arriving on the ingest loop between
	// FindNearest selecting taxi 1 and TryAssign re-validating it: the
	// update saturates the taxi's service count, so the double-check
	// in TryAssign must reject what FindNearest already picked.
	d.testRaceHook = func() {
		if ok := d.Fleet.Update(1, [2]int{5, 5}, false, fleet.MaxServices); !ok {
			t.Fatalf("expected taxi 1 to be known to the fleet")
		}
	}

	reply := d.dispatchRide(wire.RideRequest{IDUsuario: 0, Posicion: [2]int{5, 7}})
	if reply.Exito {
		t.Fatalf("expected the race to be lost, got a successful match: %+v", reply)
	}
	if reply.Error != wire.ReasonRace {
		t.Fatalf("expected reason %q, got %+v", wire.ReasonRace, reply)
	}
}

func TestIngestAppliesRegistroThenActualizacion(t *testing.T) {
	d := newTestDispatcher(true)

	regPayload := `{"tipo":"registro","id":1,"posicion":[2,3],"velocidad":1}`
	d.applyFrame(wire.Frame{Topic: "REGISTRO", Payload: []byte(regPayload)})

	updPayload := `{"tipo":"actualizacion","id":1,"posicion":[4,5],"ocupado":false,"servicios":0}`
	d.applyFrame(wire.Frame{Topic: "ACTUALIZACION", Payload: []byte(updPayload)})

	snap := d.Fleet.Snapshot()
	if len(snap) != 1 || snap[0].Position != [2]int{4, 5} {
		t.Fatalf("expected position to reflect last update, got %+v", snap)
	}
}

func TestIngestDropsUpdateForUnknownTaxi(t *testing.T) {
	d := newTestDispatcher(true)
	updPayload := `{"tipo":"actualizacion","id":99,"posicion":[4,5],"ocupado":false,"servicios":0}`
	d.applyFrame(wire.Frame{Topic: "ACTUALIZACION", Payload: []byte(updPayload)})

	if len(d.Fleet.Snapshot()) != 0 {
		t.Fatalf("expected no ghost record for unknown taxi update")
	}
}
