package broker

import (
	"encoding/json"
	"fmt"

	"taxidispatch/internal/wire"
)

const (
	TopicRegistro      = "REGISTRO"
	TopicActualizacion = "ACTUALIZACION"
	topicTaxiPrefix    = "TAXI."
)

// TaxiTopic is the per-taxi assignment topic, e.g. TAXI.7.
func TaxiTopic(taxiID int) string {
	return fmt.Sprintf("%s%d", topicTaxiPrefix, taxiID)
}

type tipoAndTaxi struct {
	Tipo   wire.Tipo `json:"tipo"`
	TaxiID int       `json:"taxi_id"`
}

// RewriteTopic applies the routing table in the order a published
// message's declared tipo determines its output topic:
//
//	registro           -> REGISTRO
//	actualizacion      -> ACTUALIZACION
//	servicio_asignado  -> TAXI.<taxi_id>
//	anything else      -> original topic, unchanged, with recognized=false
//
// A malformed payload (not JSON, or missing tipo) also rewrites to
// original/false: the broker's only semantic action is this rewrite,
// and on failure to apply it the original frame passes through
// unchanged, exactly as the source broker forwards unrecognized or
// malformed messages rather than dropping them.
func RewriteTopic(originalTopic string, payload []byte) (topic string, recognized bool) {
	var probe tipoAndTaxi
	if err := json.Unmarshal(payload, &probe); err != nil {
		return originalTopic, false
	}
	switch probe.Tipo {
	case wire.TipoRegistro:
		return TopicRegistro, true
	case wire.TipoActualizacion:
		return TopicActualizacion, true
	case wire.TipoServicioAsignado:
		return TaxiTopic(probe.TaxiID), true
	default:
		return originalTopic, false
	}
}
