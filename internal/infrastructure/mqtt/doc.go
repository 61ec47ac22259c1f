// Package mqtt provides MQTT connectivity for Idiotic Core.
//
// MQTT is an optional second transport next to the device WebSocket.
// When enabled the controller:
//   - mirrors every attribute change to a retained state topic
//   - accepts set commands on idiotic/command/{class}/{id}
//   - announces routine firings on idiotic/event/routine/{name}
//   - keeps idiotic/system/status current, with a Last Will for crashes
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        class, id, ok := mqtt.Topics{}.ParseCommand(topic)
//	        ...
//	    })
//
// Subscriptions are remembered and restored after a reconnect.
package mqtt
