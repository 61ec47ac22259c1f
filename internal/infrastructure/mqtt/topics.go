package mqtt

import "strings"

// TopicPrefix is the root of every topic the controller uses.
const TopicPrefix = "idiotic"

// Topics builds and parses Idiotic Core topic names.
//
//	topics := mqtt.Topics{}
//	topics.State("TempSensor", "62:01:94:31:6A:EA", "temperature")
//	// "idiotic/state/TempSensor/62:01:94:31:6A:EA/temperature"
type Topics struct{}

// State is the retained topic carrying one attribute's current value.
func (Topics) State(class, id, attr string) string {
	return join("state", class, id, attr)
}

// Command is where external systems publish set messages for one device.
func (Topics) Command(class, id string) string {
	return join("command", class, id)
}

// AllCommands matches every device command topic.
func (Topics) AllCommands() string {
	return join("command", "+", "+")
}

// RoutineEvent announces that the named routine fired.
func (Topics) RoutineEvent(routine string) string {
	return join("event", "routine", routine)
}

// SystemStatus carries the controller's online/offline status.
func (Topics) SystemStatus() string {
	return join("system", "status")
}

// ParseCommand extracts the device class and id from a command topic.
func (Topics) ParseCommand(topic string) (class, id string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

func join(parts ...string) string {
	return TopicPrefix + "/" + strings.Join(parts, "/")
}
