// Package mcptools exposes the reminder engine as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"remindbot/internal/reminder"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

const serverName = "remindbot"

// Endpoint is the path the streamable HTTP transport is served on.
const Endpoint = "/mcp"

type Engine interface {
	Create(ctx context.Context, owner int64, name string, tod wallclock.TimeOfDay) (reminder.Reminder, error)
	Delete(ctx context.Context, owner int64, name string) (bool, error)
	Acknowledge(ctx context.Context, owner int64, name string) (reminder.Reminder, error)
	Snooze(ctx context.Context, owner int64, name string, minutes int) (time.Time, error)
	List(owner int64) []reminder.Reminder
}

type Server struct {
	mcpServer *server.MCPServer
	eng       Engine
	log       logx.Logger
}

func New(eng Engine, version string, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{eng: eng, log: log}
	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Handler serves the tools over streamable HTTP at Endpoint.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath(Endpoint))
}

func (s *Server) registerTools() {
	owner := mcp.WithNumber("owner", mcp.Required(), mcp.Description("Chat ID that owns the reminder"))
	name := mcp.WithString("name", mcp.Required(), mcp.Description("Reminder name, unique per owner"))

	s.mcpServer.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Create or overwrite a daily reminder that repeats every cadence until acknowledged"),
			owner, name,
			mcp.WithString("time", mcp.Required(), mcp.Description("Time of day as HH:MM in the bot's timezone")),
		),
		s.handleCreate,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List the reminders of one owner"),
			owner,
		),
		s.handleList,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("acknowledge_reminder",
			mcp.WithDescription("Mark a reminder as taken; it resumes tomorrow at its time of day"),
			owner, name,
		),
		s.handleAcknowledge,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("snooze_reminder",
			mcp.WithDescription("Send one extra notification after a delay"),
			owner, name,
			mcp.WithNumber("minutes", mcp.Required(), mcp.Description("Delay in minutes")),
		),
		s.handleSnooze,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder and every pending notification for it"),
			owner, name,
		),
		s.handleDelete,
	)
}

func ownerArg(req mcp.CallToolRequest) (int64, error) {
	v := req.GetFloat("owner", 0)
	if v == 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%w: owner must be a non-zero integer", reminder.ErrInvalidInput)
	}
	return int64(v), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if !errors.Is(err, reminder.ErrNotFound) && !errors.Is(err, reminder.ErrInvalidInput) {
		s.log.Warn("mcp tool failed", logx.String("tool", tool), logx.Err(err))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return s.toolError("create_reminder", err), nil
	}
	tod, err := wallclock.ParseTimeOfDay(req.GetString("time", ""))
	if err != nil {
		return s.toolError("create_reminder", fmt.Errorf("%w: %v", reminder.ErrInvalidInput, err)), nil
	}
	r, err := s.eng.Create(ctx, owner, req.GetString("name", ""), tod)
	if err != nil {
		return s.toolError("create_reminder", err), nil
	}
	return jsonResult(r), nil
}

func (s *Server) handleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return s.toolError("list_reminders", err), nil
	}
	list := s.eng.List(owner)
	if len(list) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleAcknowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return s.toolError("acknowledge_reminder", err), nil
	}
	r, err := s.eng.Acknowledge(ctx, owner, req.GetString("name", ""))
	if err != nil {
		return s.toolError("acknowledge_reminder", err), nil
	}
	return jsonResult(r), nil
}

func (s *Server) handleSnooze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return s.toolError("snooze_reminder", err), nil
	}
	minutes := req.GetFloat("minutes", 0)
	if minutes != float64(int(minutes)) {
		return s.toolError("snooze_reminder", reminder.ErrInvalidDelay), nil
	}
	name := req.GetString("name", "")
	at, err := s.eng.Snooze(ctx, owner, name, int(minutes))
	if err != nil {
		return s.toolError("snooze_reminder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %q snoozed until %s.", name, at.Format(time.RFC3339))), nil
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return s.toolError("delete_reminder", err), nil
	}
	name := req.GetString("name", "")
	if _, err := s.eng.Delete(ctx, owner, name); err != nil {
		return s.toolError("delete_reminder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %q deleted.", name)), nil
}
