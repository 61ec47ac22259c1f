package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/mqtt"
)

// MQTTSubscriber subscribes to topics. *mqtt.Client implements it.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTPublisher publishes retained messages. *mqtt.Client implements it.
type MQTTPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// CommandSource applies set messages published on
// idiotic/command/{class}/{id}. The payload is either the attribute map
// itself or a full message with a "set" member.
type CommandSource struct {
	dispatcher *Dispatcher
	session    *Session
	logger     Logger
}

// NewCommandSource creates a source feeding dispatcher.
func NewCommandSource(dispatcher *Dispatcher, logger Logger) *CommandSource {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandSource{dispatcher: dispatcher, session: NewSession(nil), logger: logger}
}

// Start subscribes to every device command topic.
func (c *CommandSource) Start(sub MQTTSubscriber, qos byte) error {
	topic := mqtt.Topics{}.AllCommands()
	if err := sub.Subscribe(topic, qos, c.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	c.logger.Info("mqtt command source started", "topic", topic)
	return nil
}

// HandleMessage implements mqtt.MessageHandler.
func (c *CommandSource) HandleMessage(topic string, payload []byte) error {
	class, id, ok := mqtt.Topics{}.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrMalformedMessage, topic)
	}

	body, err := Decode(JSON, payload)
	if err != nil {
		return err
	}
	set, wrapped := body["set"]
	if !wrapped {
		set = body
	}

	req, err := ParseRequest(map[string]any{"uuid": id, "class": class, "set": set})
	if err != nil {
		return err
	}

	reply := c.dispatcher.Handle(context.Background(), c.session, req)
	for _, e := range reply.Errors {
		c.logger.Warn("mqtt command entry failed", "topic", topic, "attr", e.Attr, "error", e.Error)
	}
	return nil
}

// StateSink publishes every attribute change as a retained JSON value on
// idiotic/state/{class}/{id}/{attr}.
type StateSink struct {
	pub    MQTTPublisher
	logger Logger
}

// NewStateSink creates a change-feed sink publishing through pub.
func NewStateSink(pub MQTTPublisher, logger Logger) *StateSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StateSink{pub: pub, logger: logger}
}

// HandleChange implements device.Sink.
func (s *StateSink) HandleChange(c device.Change) {
	payload, err := json.Marshal(c.Value)
	if err != nil {
		s.logger.Warn("state not serialisable", "id", c.DeviceID, "attr", c.Attribute, "error", err)
		return
	}
	topic := mqtt.Topics{}.State(c.Class, c.DeviceID, c.Attribute)
	if err := s.pub.PublishRetained(topic, payload); err != nil {
		s.logger.Warn("publishing state failed", "topic", topic, "error", err)
	}
}
