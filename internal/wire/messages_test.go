package wire

import (
	"encoding/json"
	"testing"
)

func TestRegisterRoundTrip(t *testing.T) {
	in := Register{Tipo: TipoRegistro, ID: 3, Posicion: Position{4, 5}, Velocidad: 2}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Register
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}

	inbound, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if inbound.Kind != InboundRegister || inbound.Register != in {
		t.Fatalf("DecodeInbound mismatch: %+v", inbound)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	in := Update{Tipo: TipoActualizacion, ID: 7, Posicion: Position{1, 1}, Ocupado: true, Servicios: 2, Timestamp: 123.456}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Update
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}

	inbound, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if inbound.Kind != InboundUpdate || inbound.Update != in {
		t.Fatalf("DecodeInbound mismatch: %+v", inbound)
	}
}

func TestAssignmentRoundTrip(t *testing.T) {
	in := Assignment{Tipo: TipoServicioAsignado, TaxiID: 2, PosUsuario: Position{9, 9}, IDUsuario: 5}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Assignment
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}

	inbound, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if inbound.Kind != InboundAssignment || inbound.Assignment != in {
		t.Fatalf("DecodeInbound mismatch: %+v", inbound)
	}
}

func TestRideRequestAndReplyRoundTrip(t *testing.T) {
	req := RideRequest{Tipo: TipoSolicitud, IDUsuario: 1, Posicion: Position{2, 3}, TiempoSolicitud: 100, CorrelationID: "abc-123"}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var gotReq RideRequest
	if err := json.Unmarshal(data, &gotReq); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if gotReq != req {
		t.Fatalf("request round trip mismatch: got %+v, want %+v", gotReq, req)
	}

	reply := RideReply{Exito: true, TaxiID: 1, PosTaxi: Position{2, 3}, CorrelationID: req.CorrelationID}
	data, err = json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	var gotReply RideReply
	if err := json.Unmarshal(data, &gotReply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if gotReply != reply {
		t.Fatalf("reply round trip mismatch: got %+v, want %+v", gotReply, reply)
	}
}

func TestDecodeInboundUnknownTipoFallsBackToRaw(t *testing.T) {
	payload := []byte(`{"tipo":"mystery","campo":1}`)
	inbound, err := DecodeInbound(payload)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if inbound.Kind != InboundUnknown {
		t.Fatalf("expected InboundUnknown, got %v", inbound.Kind)
	}
	if string(inbound.Raw) != string(payload) {
		t.Fatalf("raw payload not preserved: got %s, want %s", inbound.Raw, payload)
	}
}

func TestDecodeInboundMalformedJSONFallsBackToRaw(t *testing.T) {
	payload := []byte(`not json`)
	inbound, err := DecodeInbound(payload)
	if err != nil {
		t.Fatalf("DecodeInbound should not error on malformed payloads, got: %v", err)
	}
	if inbound.Kind != InboundUnknown {
		t.Fatalf("expected InboundUnknown, got %v", inbound.Kind)
	}
	if string(inbound.Raw) != string(payload) {
		t.Fatalf("raw payload not preserved: got %s, want %s", inbound.Raw, payload)
	}
}

func TestDecodeInboundMissingTipoFallsBackToRaw(t *testing.T) {
	payload := []byte(`{"id":1}`)
	inbound, err := DecodeInbound(payload)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if inbound.Kind != InboundUnknown {
		t.Fatalf("expected InboundUnknown, got %v", inbound.Kind)
	}
}
