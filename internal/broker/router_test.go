package broker

import "testing"

func TestRewriteTopicTable(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		wantTopic string
		wantOK    bool
	}{
		{"registro", `{"tipo":"registro","id":1,"posicion":[0,0],"velocidad":1}`, TopicRegistro, true},
		{"actualizacion", `{"tipo":"actualizacion","id":1,"posicion":[0,0],"ocupado":false,"servicios":0}`, TopicActualizacion, true},
		{"servicio_asignado", `{"tipo":"servicio_asignado","taxi_id":7,"pos_usuario":[1,1],"id_usuario":2}`, "TAXI.7", true},
		{"unknown tipo", `{"tipo":"mystery"}`, "ORIGINAL", false},
		{"malformed json", `not json`, "ORIGINAL", false},
		{"missing tipo", `{"id":1}`, "ORIGINAL", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			topic, ok := RewriteTopic("ORIGINAL", []byte(tc.payload))
			if topic != tc.wantTopic || ok != tc.wantOK {
				t.Fatalf("RewriteTopic(%q) = (%q, %v), want (%q, %v)", tc.payload, topic, ok, tc.wantTopic, tc.wantOK)
			}
		})
	}
}
