package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/appliance-shell/internal/recovery"
)

const (
	descSessionID        = "The session ID returned by appliance_connect"
	errSessionIDRequired = "session_id is required"
	defaultTimeoutMs     = 30000
)

// Config-mode actions accepted by appliance_config_mode.
const (
	actionEnter = "enter"
	actionExit  = "exit"
	actionCheck = "check"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(applianceListTool(), s.handleApplianceList)
	s.mcpServer.AddTool(applianceConnectTool(), s.handleApplianceConnect)
	s.mcpServer.AddTool(appliancePromptTool(), s.handleAppliancePrompt)
	s.mcpServer.AddTool(applianceConfigModeTool(), s.handleApplianceConfigMode)
	s.mcpServer.AddTool(applianceSendTool(), s.handleApplianceSend)
	s.mcpServer.AddTool(applianceSendConfigTool(), s.handleApplianceSendConfig)
	s.mcpServer.AddTool(applianceDisconnectTool(), s.handleApplianceDisconnect)
}

// Tool definitions

func applianceListTool() mcp.Tool {
	return mcp.NewTool("appliance_list",
		mcp.WithDescription("List configured appliances and open sessions"),
	)
}

func applianceConnectTool() mcp.Tool {
	return mcp.NewTool("appliance_connect",
		mcp.WithDescription("Connect to a configured appliance, disable paging and discover its prompt"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Appliance name from the inventory"),
		),
	)
}

func appliancePromptTool() mcp.Tool {
	return mcp.NewTool("appliance_prompt",
		mcp.WithDescription("Return the base prompt discovered when the session was prepared"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description(descSessionID),
		),
	)
}

func applianceConfigModeTool() mcp.Tool {
	return mcp.NewTool("appliance_config_mode",
		mcp.WithDescription("Enter, exit or check configuration mode. Transitions are verified by re-probing the appliance"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description(descSessionID),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum(actionEnter, actionExit, actionCheck),
			mcp.Description("enter, exit or check"),
		),
	)
}

func applianceSendTool() mcp.Tool {
	return mcp.NewTool("appliance_send",
		mcp.WithDescription("Send one command and return its output up to the next prompt"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description(descSessionID),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to send"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Overall timeout in milliseconds (default: 30000)"),
		),
	)
}

func applianceSendConfigTool() mcp.Tool {
	return mcp.NewTool("appliance_send_config",
		mcp.WithDescription("Enter configuration mode, send each line, then leave configuration mode"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description(descSessionID),
		),
		mcp.WithArray("lines",
			mcp.Required(),
			mcp.Description("Configuration lines, in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Overall timeout in milliseconds (default: 30000)"),
		),
	)
}

func applianceDisconnectTool() mcp.Tool {
	return mcp.NewTool("appliance_disconnect",
		mcp.WithDescription("Close an appliance session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description(descSessionID),
		),
	)
}

// Tool handlers

type applianceEntry struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Address   string `json:"address,omitempty"`
}

func (s *Server) handleApplianceList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.sessions.Config()
	appliances := make([]applianceEntry, 0, len(cfg.Appliances))
	for _, a := range cfg.Appliances {
		entry := applianceEntry{Name: a.Name, Transport: a.Transport}
		if a.Host != "" {
			entry.Address = a.Address()
		}
		appliances = append(appliances, entry)
	}

	return jsonResult(map[string]any{
		"appliances": appliances,
		"sessions":   s.sessions.List(),
	})
}

func (s *Server) handleApplianceConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(req, "name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	s.logger.Info("connecting to appliance", slog.String("appliance", name))

	sess, err := s.sessions.Connect(ctx, name)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{
		"session_id":  sess.ID,
		"appliance":   name,
		"base_prompt": sess.BasePrompt(),
		"status":      "ready",
	})
}

func (s *Server) handleAppliancePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"session_id":  sessionID,
		"base_prompt": sess.BasePrompt(),
	})
}

func (s *Server) handleApplianceConfigMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	action := mcp.ParseString(req, "action", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out string
	switch action {
	case actionEnter:
		out, err = sess.EnterConfigMode(ctx)
	case actionExit:
		out, err = sess.ExitConfigMode(ctx)
	case actionCheck:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("action must be %s, %s or %s", actionEnter, actionExit, actionCheck)), nil
	}
	if err != nil {
		return toolError(err), nil
	}

	in, err := sess.IsInConfigMode(ctx)
	if err != nil {
		return toolError(err), nil
	}

	s.logger.Info("config mode",
		slog.String("session_id", sessionID),
		slog.String("action", action),
		slog.Bool("in_config", in),
	)
	return jsonResult(map[string]any{
		"session_id": sessionID,
		"action":     action,
		"in_config":  in,
		"output":     out,
	})
}

func (s *Server) handleApplianceSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	timeoutMs := mcp.ParseInt(req, "timeout_ms", defaultTimeoutMs)
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info("sending command",
		slog.String("session_id", sessionID),
		slog.String("command", command),
	)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()
	out, err := sess.Send(ctx, command)
	if err != nil {
		return toolError(err), nil
	}
	result := map[string]any{
		"session_id": sessionID,
		"output":     out,
	}
	if hints := s.analyzer.Analyze(command, out); len(hints) > 0 {
		result["hints"] = hints
	}
	return jsonResult(result)
}

func (s *Server) handleApplianceSendConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	lines := req.GetStringSlice("lines", nil)
	timeoutMs := mcp.ParseInt(req, "timeout_ms", defaultTimeoutMs)
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	if len(lines) == 0 {
		return mcp.NewToolResultError("lines is required"), nil
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info("sending config set",
		slog.String("session_id", sessionID),
		slog.Int("lines", len(lines)),
	)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()
	out, err := sess.SendConfig(ctx, lines)
	if err != nil {
		return toolError(err), nil
	}
	result := map[string]any{
		"session_id": sessionID,
		"output":     out,
	}
	if hints := s.analyzer.Analyze(strings.Join(lines, "; "), out); len(hints) > 0 {
		result["hints"] = hints
	}
	return jsonResult(result)
}

func (s *Server) handleApplianceDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}

	s.logger.Info("closing session", slog.String("session_id", sessionID))

	if err := s.sessions.Close(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session closed"), nil
}

// toolError reports err, followed by a recovery hint when one applies.
func toolError(err error) *mcp.CallToolResult {
	msg := err.Error()
	if hint := recovery.AnalyzeError(err); hint != nil {
		msg += "\nhint: " + hint.Explanation
	}
	return mcp.NewToolResultError(msg)
}

// jsonResult converts a value to a JSON tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
