// Package mcp bridges tools hosted by external MCP server subprocesses into
// the agent's tool registry.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/careline/careline/errors"
	"github.com/careline/careline/tools"
)

// Client manages the connection to a single MCP server subprocess and the
// tools it exposes.
type Client struct {
	Name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  []*Tool
	logger *slog.Logger
}

// Connect starts the MCP server subprocess and discovers its tools.
func Connect(ctx context.Context, name, command string, args []string, logger *slog.Logger) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "careline", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	c := &Client{Name: name, cmd: cmd, conn: conn, logger: logger}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			c.tools = append(c.tools, &Tool{
				name:        t.Name,
				description: t.Description,
				client:      c,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	if logger != nil {
		logger.Info("mcp server connected", "server", name, "tools", len(c.tools))
	}
	return c, nil
}

// RegisterAll adds every discovered tool to the registry.
func (c *Client) RegisterAll(registry *tools.Registry) error {
	for _, t := range c.tools {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool is a tool hosted by an external MCP server, adapted to the registry's
// Tool interface.
type Tool struct {
	name        string
	description string
	client      *Client
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }

// Schema returns nil: argument validation is delegated to the MCP server,
// which knows its own input schema.
func (t *Tool) Schema() *tools.Schema { return nil }

func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return tools.Result{}, errors.Wrapf(err, "failed to call MCP tool '%s'", t.name)
	}
	var out string
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return tools.Result{Content: out}, nil
}
