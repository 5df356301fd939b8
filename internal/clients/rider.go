package clients

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"taxidispatch/internal/wire"
)

// RequestRide implements §4.5's rider contract: open one synchronous
// connection, send one RideRequest, await one reply within timeout
// (minimum 5s), then close. Each request carries a fresh correlation
// id so the dispatcher's logs can be grepped for one rider's exchange
// without relying on connection timing.
func RequestRide(dispatcherAddr string, riderID int, position [2]int, timeout time.Duration) (wire.RideReply, error) {
	if timeout < 5*time.Second {
		timeout = 5 * time.Second
	}
	conn, err := wire.Dial("tcp", dispatcherAddr, timeout)
	if err != nil {
		return wire.RideReply{}, fmt.Errorf("connecting to dispatcher: %w", err)
	}
	defer conn.Close()

	req := wire.RideRequest{
		Tipo:            wire.TipoSolicitud,
		IDUsuario:       riderID,
		Posicion:        position,
		TiempoSolicitud: float64(time.Now().UnixNano()) / 1e9,
		CorrelationID:   uuid.NewString(),
	}
	if err := wire.WriteJSON(conn, req, timeout); err != nil {
		return wire.RideReply{}, fmt.Errorf("sending ride request: %w", err)
	}

	var reply wire.RideReply
	if err := wire.ReadJSON(conn, &reply, timeout); err != nil {
		return wire.RideReply{}, fmt.Errorf("awaiting ride reply: %w", err)
	}
	return reply, nil
}
