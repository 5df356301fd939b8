package dispatcher

import (
	"context"
	"fmt"
	"net"
	"time"

	"taxidispatch/internal/wire"
)

const probeTimeout = 1 * time.Second

// ServeProbeReplies implements the primary's half of §4.3: reply "OK"
// to every "ping" it receives on addr. This is the primary's passive
// side of the health protocol; the active side (sending pings and
// deciding on failure) lives in the healthmonitor package.
func (d *Dispatcher) ServeProbeReplies(ctx context.Context, addr string) error {
	return serveSingleFrameEcho(ctx, addr, "ping", "OK", d.Logger.Printf)
}

// ServeActivation implements §4.4: acknowledge every "activate" frame
// with "OK" and call Activate, then (on the first activation only)
// start serving rider requests on riderAddr. Activation is idempotent;
// a second "activate" is acknowledged but starts no second listener.
func (d *Dispatcher) ServeActivation(ctx context.Context, addr, riderAddr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding activation endpoint %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var startOnce bool

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accepting activation connection: %w", err)
			}
		}
		c := wire.NewConn(conn)
		var msg string
		if err := wire.ReadJSON(c, &msg, probeTimeout); err != nil {
			c.Close()
			continue
		}
		if msg == "activate" {
			d.Activate()
			if !startOnce {
				startOnce = true
				go func() {
					if err := d.ServeRiderRequests(ctx, riderAddr); err != nil {
						d.Logger.Printf("dispatcher: standby rider listener: %v", err)
					}
				}()
			}
		}
		wire.WriteJSON(c, "OK", probeTimeout)
		c.Close()
	}
}

// serveSingleFrameEcho binds addr and, for every connection, reads one
// JSON string frame and, if it equals want, replies with reply.
func serveSingleFrameEcho(ctx context.Context, addr, want, reply string, logf func(string, ...any)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
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
				return fmt.Errorf("accepting connection: %w", err)
			}
		}
		go func(conn net.Conn) {
			c := wire.NewConn(conn)
			defer c.Close()
			var msg string
			if err := wire.ReadJSON(c, &msg, probeTimeout); err != nil {
				return
			}
			if msg == want {
				wire.WriteJSON(c, reply, probeTimeout)
			}
		}(conn)
	}
}
