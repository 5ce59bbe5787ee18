// Package console implements an interactive client for a running
// gateway.
package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/omnichat/cmd/omnichat/internal"
)

func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console against a running gateway",
		RunE: func(_ *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := internal.LoadConfig()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				addr = net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
			}
			c := &console{
				baseURL: "http://" + addr,
				client:  &http.Client{Timeout: 15 * time.Second},
			}
			return c.run()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gateway address (host:port), defaults to the configured gateway")
	return cmd
}

type console struct {
	baseURL string
	client  *http.Client
}

func (c *console) run() error {
	rl, err := readline.New("omnichat> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Connected to", c.baseURL, "- type 'help' for commands")

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil // io.EOF on ctrl-d
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			printHelp()
		case "messages":
			c.messages(args)
		case "channels":
			c.get("/api/channels")
		case "stats":
			c.get("/api/stats")
		case "integrations":
			c.get("/api/integrations")
		case "send":
			c.send(args)
		case "broadcast":
			c.broadcast(args)
		default:
			fmt.Printf("unknown command %q, type 'help'\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  messages [limit]                  recent messages across platforms
  channels                          observed channels
  stats                             hub statistics
  integrations                      integration health
  send <platform> <channel> <text>  send a message
  broadcast <text>                  broadcast to all observed channels
  exit                              leave the console
`)
}

func (c *console) messages(args []string) {
	path := "/api/messages"
	if len(args) > 0 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			fmt.Println("limit must be a number")
			return
		}
		path += "?limit=" + args[0]
	}
	c.get(path)
}

func (c *console) send(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: send <platform> <channel> <text>")
		return
	}
	c.post("/api/send", map[string]any{
		"platform": args[0],
		"channel":  args[1],
		"content":  strings.Join(args[2:], " "),
	})
}

func (c *console) broadcast(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: broadcast <text>")
		return
	}
	c.post("/api/broadcast", map[string]any{
		"content": strings.Join(args, " "),
	})
}

func (c *console) get(path string) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}
	printResponse(resp)
}

func (c *console) post(path string, body map[string]any) {
	data, _ := json.Marshal(body)
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Println("reading response:", err)
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	if resp.StatusCode >= 400 {
		fmt.Printf("HTTP %d\n", resp.StatusCode)
	}
	fmt.Println(pretty.String())
}
