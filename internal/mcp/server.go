// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/colebrumley/fwtrigger/internal/daemon"
	"github.com/colebrumley/fwtrigger/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxHistoryLimit = 500

// Source is what the server reports on; *daemon.Daemon implements it.
type Source interface {
	Status() []daemon.TriggerStatus
	History() *state.DB
}

// Server wraps the MCP server with trigger inspection tools
type Server struct {
	src    Source
	server *mcp.Server
}

// TriggerInfoInput is the input schema for the trigger_info tool
type TriggerInfoInput struct {
	Name string `json:"name,omitempty" jsonschema:"Optional trigger name; all triggers when empty"`
}

// TriggerInfoOutput is the output schema for the trigger_info tool
type TriggerInfoOutput struct {
	Triggers []daemon.TriggerStatus `json:"triggers"`
	Count    int                    `json:"count"`
}

// FireHistoryInput is the input schema for the fire_history tool
type FireHistoryInput struct {
	Trigger string `json:"trigger,omitempty" jsonschema:"Optional trigger name filter"`
	State   string `json:"state,omitempty" jsonschema:"Optional state filter: fired, success, failure, timeout"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of fires to return (default 50, max 500)"`
}

// FireHistoryOutput is the output schema for the fire_history tool
type FireHistoryOutput struct {
	Fires []FireResult `json:"fires"`
	Count int          `json:"count"`
}

// FireResult is a single fire in history results
type FireResult struct {
	ID         int64  `json:"id"`
	Trigger    string `json:"trigger"`
	EventType  string `json:"event_type"`
	Sequence   uint64 `json:"sequence"`
	FilePath   string `json:"file_path"`
	State      string `json:"state"`
	FiredAt    string `json:"fired_at"`
	DurationMs int64  `json:"duration_ms"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
	Output     string `json:"output,omitempty"`
}

// NewServer creates a new MCP server reporting on src
func NewServer(src Source) *Server {
	s := &Server{src: src}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "fwtrigger",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_info",
		Description: "Show the configured file triggers: which files and directories each one watches, whether it is running, when its timer fires next, and when it last fired.",
	}, s.handleTriggerInfo)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fire_history",
		Description: "List recent trigger fires, newest first, with the outcome of each fire's action. Filter by trigger name and state.",
	}, s.handleFireHistory)

	s.server = server
	return s
}

func (s *Server) handleTriggerInfo(ctx context.Context, req *mcp.CallToolRequest, input TriggerInfoInput) (*mcp.CallToolResult, TriggerInfoOutput, error) {
	all := s.src.Status()
	if input.Name == "" {
		return nil, TriggerInfoOutput{Triggers: all, Count: len(all)}, nil
	}
	for _, st := range all {
		if st.Name == input.Name {
			return nil, TriggerInfoOutput{Triggers: []daemon.TriggerStatus{st}, Count: 1}, nil
		}
	}
	return nil, TriggerInfoOutput{}, fmt.Errorf("trigger %q not found", input.Name)
}

func (s *Server) handleFireHistory(ctx context.Context, req *mcp.CallToolRequest, input FireHistoryInput) (*mcp.CallToolResult, FireHistoryOutput, error) {
	db := s.src.History()
	if db == nil {
		return nil, FireHistoryOutput{}, errors.New("fire history is disabled in the configuration")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := db.GetHistory(input.Trigger, input.State, limit)
	if err != nil {
		return nil, FireHistoryOutput{}, fmt.Errorf("failed to read fire history: %w", err)
	}

	results := make([]FireResult, len(records))
	for i, r := range records {
		results[i] = FireResult{
			ID:         r.ID,
			Trigger:    r.TriggerName,
			EventType:  r.EventType,
			Sequence:   r.Sequence,
			FilePath:   r.FilePath,
			State:      r.State,
			FiredAt:    r.FiredAt.Local().Format(time.RFC3339),
			DurationMs: r.DurationMs,
			ExitCode:   r.ExitCode,
			Error:      r.Error,
			Output:     r.Output,
		}
	}

	return nil, FireHistoryOutput{
		Fires: results,
		Count: len(results),
	}, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
