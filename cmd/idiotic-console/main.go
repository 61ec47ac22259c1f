// idiotic-console is an interactive client for the controller's device
// endpoint. It speaks the same hello/set/get frames an embedded device
// sends, which makes it useful for poking rules by hand.
//
// Usage:
//
//	idiotic-console [-url ws://host:5000/embedded] [-cbor] [-class TempSensor -uuid 62:01:94:31:6A:EA]
//
// Without -url the controller is located over mDNS.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/idiotic-core/internal/discovery"
	"github.com/nerrad567/idiotic-core/internal/protocol"
)

const browseTimeout = 5 * time.Second

func main() {
	url := flag.String("url", "", "device endpoint URL (default: discover over mDNS)")
	iface := flag.String("iface", "", "network interface for mDNS discovery")
	useCBOR := flag.Bool("cbor", false, "send CBOR binary frames instead of JSON text")
	class := flag.String("class", "", "device class to announce on connect")
	uuid := flag.String("uuid", "", "device id to announce on connect")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	enc := protocol.JSON
	if *useCBOR {
		enc = protocol.CBOR
	}
	if err := run(ctx, cancel, *url, *iface, enc, *class, *uuid); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, url, iface string, enc protocol.Encoding, class, uuid string) error {
	if url == "" {
		browseCtx, stop := context.WithTimeout(ctx, browseTimeout)
		svc, err := discovery.FindFirst(browseCtx, iface)
		stop()
		if err != nil {
			return fmt.Errorf("locating controller (use -url): %w", err)
		}
		url = svc.URL()
		fmt.Printf("found %s at %s\n", svc.Instance, url)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	resp.Body.Close()
	defer ws.Close()

	c, err := NewConsole(ws, enc)
	if err != nil {
		return err
	}
	if class != "" && uuid != "" {
		if err := c.send(helloFrame(class, uuid)); err != nil {
			return err
		}
	}
	return c.Run(ctx, cancel)
}
