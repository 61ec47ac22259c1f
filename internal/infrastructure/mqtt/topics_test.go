package mqtt

import (
	"encoding/json"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", topics.State("TempSensor", "62:01:94:31:6A:EA", "temperature"), "idiotic/state/TempSensor/62:01:94:31:6A:EA/temperature"},
		{"Command", topics.Command("HueLight", "abc"), "idiotic/command/HueLight/abc"},
		{"AllCommands", topics.AllCommands(), "idiotic/command/+/+"},
		{"RoutineEvent", topics.RoutineEvent("too_hot"), "idiotic/event/routine/too_hot"},
		{"SystemStatus", topics.SystemStatus(), "idiotic/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		topic     string
		wantClass string
		wantID    string
		wantOk    bool
	}{
		{"idiotic/command/HueLight/abc", "HueLight", "abc", true},
		{"idiotic/command/HueLight", "", "", false},
		{"idiotic/state/HueLight/abc", "", "", false},
		{"other/command/HueLight/abc", "", "", false},
		{"idiotic/command//abc", "", "", false},
		{"idiotic/command/HueLight/abc/extra", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			class, id, ok := Topics{}.ParseCommand(tt.topic)
			if ok != tt.wantOk || class != tt.wantClass || id != tt.wantID {
				t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, class, id, ok, tt.wantClass, tt.wantID, tt.wantOk)
			}
		})
	}
}

func TestStatusPayload(t *testing.T) {
	var s systemStatus
	if err := json.Unmarshal(statusPayload("core-1", "offline", "unexpected_disconnect"), &s); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if s.Status != "offline" || s.ClientID != "core-1" || s.Reason != "unexpected_disconnect" || s.Timestamp == "" {
		t.Errorf("status = %+v", s)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q", opts.Username)
	}
	if !opts.WillEnabled || opts.WillTopic != "idiotic/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
}
