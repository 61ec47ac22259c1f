package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/idiotic-core/internal/protocol"
)

var errUsage = errors.New("usage")

// Console is the interactive loop over one device connection.
type Console struct {
	ws  *websocket.Conn
	enc protocol.Encoding
	rl  *readline.Instance

	writeMu sync.Mutex
}

// NewConsole creates a console sending frames in enc.
func NewConsole(ws *websocket.Conn, enc protocol.Encoding) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "idiotic> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{ws: ws, enc: enc, rl: rl}, nil
}

// Run reads commands until quit, EOF or ctx is done. Frames from the
// controller are printed as they arrive.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) error {
	defer c.rl.Close()

	go c.readLoop(cancel)
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			cancel()
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		fields := strings.Fields(input)
		switch cmd := strings.ToLower(fields[0]); cmd {
		case "help", "?":
			c.printHelp()
		case "quit", "exit", "q":
			cancel()
			return nil
		default:
			frame, err := buildFrame(cmd, fields[1:], input)
			if err != nil {
				fmt.Fprintf(c.rl.Stdout(), "%v (type 'help' for commands)\n", err)
				continue
			}
			if err := c.send(frame); err != nil {
				return err
			}
		}
	}
}

func (c *Console) send(frame map[string]any) error {
	data, err := protocol.Encode(c.enc, frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	msgType := websocket.TextMessage
	if c.enc == protocol.CBOR {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(msgType, data); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

func (c *Console) readLoop(cancel context.CancelFunc) {
	out := c.rl.Stdout()
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			fmt.Fprintf(out, "connection closed: %v\n", err)
			cancel()
			return
		}
		enc := protocol.JSON
		if msgType == websocket.BinaryMessage {
			enc = protocol.CBOR
		}
		printFrame(out, enc, data)
	}
}

func printFrame(out io.Writer, enc protocol.Encoding, data []byte) {
	m, err := protocol.Decode(enc, data)
	if err != nil {
		fmt.Fprintf(out, "<< undecodable %s frame: %v\n", enc, err)
		return
	}
	pretty, err := json.Marshal(m)
	if err != nil {
		fmt.Fprintf(out, "<< %v\n", m)
		return
	}
	fmt.Fprintf(out, "<< %s\n", pretty)
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Commands:
  hello <class> <uuid>          - Announce this connection as a device
  set <attr> <value>            - Write an attribute of the announced device
  setid <id> <attr> <value>     - Write an attribute of any device by id
  setname <class> <name> <attr> <value>
                                - Write an attribute of a device by class and name
  get <id> <attr>               - Read an attribute
  raw <json>                    - Send a JSON object as-is
  help                          - Show this help
  quit                          - Exit

Values are parsed as JSON when possible (31, 2.5, true, "text"),
otherwise taken as a string.`)
}

// buildFrame turns one console command into a protocol frame.
func buildFrame(cmd string, args []string, line string) (map[string]any, error) {
	switch cmd {
	case "hello":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: hello <class> <uuid>", errUsage)
		}
		return helloFrame(args[0], args[1]), nil

	case "set":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: set <attr> <value>", errUsage)
		}
		return map[string]any{"set": map[string]any{args[0]: parseValue(strings.Join(args[1:], " "))}}, nil

	case "setid":
		if len(args) < 3 {
			return nil, fmt.Errorf("%w: setid <id> <attr> <value>", errUsage)
		}
		return map[string]any{"set": []any{map[string]any{
			"id": args[0], "attr": args[1], "value": parseValue(strings.Join(args[2:], " ")),
		}}}, nil

	case "setname":
		if len(args) < 4 {
			return nil, fmt.Errorf("%w: setname <class> <name> <attr> <value>", errUsage)
		}
		return map[string]any{"set": []any{map[string]any{
			"class": args[0], "name": args[1], "attr": args[2], "value": parseValue(strings.Join(args[3:], " ")),
		}}}, nil

	case "get":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: get <id> <attr>", errUsage)
		}
		return map[string]any{"get": []any{map[string]any{"id": args[0], "attr": args[1]}}}, nil

	case "raw":
		raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "raw"))
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("raw frame is not a JSON object: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown command: %s", cmd)
}

func helloFrame(class, uuid string) map[string]any {
	return map[string]any{"hello": true, "class": class, "uuid": uuid}
}

// parseValue reads s as JSON, falling back to the literal string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
