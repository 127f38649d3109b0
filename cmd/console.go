package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KalharPandya/upstocks-mcp/internal/auth"
	"github.com/KalharPandya/upstocks-mcp/internal/config"
	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
	"github.com/KalharPandya/upstocks-mcp/internal/methods"
	"github.com/KalharPandya/upstocks-mcp/internal/protocol"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
	"github.com/KalharPandya/upstocks-mcp/internal/upstox"
)

func newConsoleCmd() *cobra.Command {
	var debugMode bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console for exercising gateway methods",
		Long: `Start an interactive console that feeds requests straight into the
gateway's dispatcher, without any network transport in between.

Each input line is either a full JSON-RPC request object, or the shorthand

  <method> [json params]

for example:

  session/start
  tools/execute {"tool_id":"get-funds"}
  {"jsonrpc":"2.0","id":1,"method":"discovery"}

The console remembers the last session it started and injects its
session_id into shorthand requests automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debugMode
			}
			return runConsole(cfg)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

// console drives the dispatcher from stdin lines. It carries the session it
// most recently started so shorthand requests do not need to repeat it.
type console struct {
	dispatcher *dispatch.Dispatcher
	auth       *auth.Manager
	out        *bufio.Writer
	sessionID  string
	nextID     int
}

func runConsole(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(cfg.Debug)

	environment, err := auth.ParseEnvironment(cfg.Environment)
	if err != nil {
		return err
	}
	key, secret, token := cfg.ActiveCredentials()
	creds := auth.Credentials{
		Environment: environment,
		APIKey:      key,
		APISecret:   secret,
		AccessToken: token,
		RedirectURI: cfg.RedirectURI,
	}
	authManager := auth.NewManager(creds, logger)

	sessions := session.NewRegistry(logger)
	defer sessions.Stop()

	broker := upstox.New(creds.BaseURL(), authManager, logger, nil)

	dispatcher := dispatch.New(sessions, logger, nil)
	methods.RegisterAll(dispatcher, &methods.Services{
		Sessions: sessions,
		Auth:     authManager,
		Broker:   broker,
		Logger:   logger,
		Version:  version,
	})

	c := &console{
		dispatcher: dispatcher,
		auth:       authManager,
		out:        bufio.NewWriter(os.Stdout),
		nextID:     1,
	}
	defer c.out.Flush()

	fmt.Fprintf(c.out, "upstocks-mcp console (%s environment). Type help for commands.\n", environment)
	c.out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := c.handleLine(ctx, line); done {
			return nil
		}
		c.out.Flush()
	}
	return scanner.Err()
}

// handleLine processes one console input line. It returns true when the
// console should exit.
func (c *console) handleLine(ctx context.Context, line string) bool {
	switch line {
	case "exit", "quit":
		return true
	case "help":
		c.printHelp()
		return false
	case "methods":
		for _, m := range c.dispatcher.Methods() {
			fmt.Fprintln(c.out, " ", m)
		}
		return false
	case "auth":
		fmt.Fprintln(c.out, c.auth.AuthorizationURL())
		return false
	}

	var resp *protocol.Response
	if strings.HasPrefix(line, "{") {
		resp = c.dispatcher.DispatchRaw(ctx, []byte(line))
	} else {
		req, err := c.shorthandRequest(line)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			return false
		}
		resp = c.dispatcher.Dispatch(ctx, req)
	}

	c.rememberSession(resp)
	c.printResponse(resp)
	return false
}

// shorthandRequest builds a JSON-RPC request from "<method> [json params]".
// The remembered session_id is injected when the params omit it.
func (c *console) shorthandRequest(line string) (*protocol.Request, error) {
	method, rest, _ := strings.Cut(line, " ")

	params := map[string]any{}
	if rest = strings.TrimSpace(rest); rest != "" {
		if err := json.Unmarshal([]byte(rest), &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	if c.sessionID != "" {
		if _, ok := params["session_id"]; !ok {
			params["session_id"] = c.sessionID
		}
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(c.nextID)
	if err != nil {
		return nil, err
	}
	c.nextID++

	return &protocol.Request{
		JSONRPC: protocol.Version,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	}, nil
}

// rememberSession captures the session_id from session/start and initialize
// results.
func (c *console) rememberSession(resp *protocol.Response) {
	if resp == nil || resp.Error != nil {
		return
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		return
	}
	if id, ok := result["session_id"].(string); ok && id != "" {
		c.sessionID = id
		fmt.Fprintf(c.out, "session: %s\n", id)
	}
}

func (c *console) printResponse(resp *protocol.Response) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}
	c.out.Write(data)
	fmt.Fprintln(c.out)
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  help              Show this help
  methods           List registered gateway methods
  auth              Print the Upstox authorization URL
  exit, quit        Leave the console

Requests:
  <method> [json]   Shorthand, e.g.  tools/execute {"tool_id":"get-funds"}
  {...}             A full JSON-RPC 2.0 request object
`)
}
