// Package mcp implements the line-delimited JSON-RPC stdio transport of
// §6: a minimal initialize/tools-list/tools-call envelope, grounded on
// emergent-company-specmcp's internal/mcp package (the one example repo
// that implements this exact wire contract), trimmed to the
// tools-only subset APEX's tool catalog needs — no prompts or resources,
// since the generic framed transport and its wider surface are
// out of scope per §1.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// Server reads JSON-RPC requests from stdin and writes responses to
// stdout, one line per message.
type Server struct {
	registry *Registry
	info     ServerInfo
}

// NewServer creates a Server bound to a tool registry.
func NewServer(registry *Registry, info ServerInfo) *Server {
	return &Server{registry: registry, info: info}
}

// Run blocks until stdin is closed. ctx is checked between messages: a
// cancelled ctx makes Run return when the next line arrives, not while it
// is waiting for input.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	logging.MCP("apex server started (%s %s)", s.info.Name, s.info.Version)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleMessage(ctx, line)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				logging.MCPError("writing response: %v", err)
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading stdin: %w", err)
	}
	logging.MCP("apex server stopped (stdin closed)")
	return nil
}

func (s *Server) handleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		logging.MCPError("parsing request: %v", err)
		return &Response{JSONRPC: "2.0", Error: &RPCError{Code: ErrCodeParse, Message: "parse error", Data: err.Error()}}
	}

	if req.ID == nil {
		logging.MCPDebug("received notification: %s", req.Method)
		return nil
	}

	result, rpcErr := s.dispatch(ctx, &req)
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize()
	case "tools/list":
		return &ToolsListResult{Tools: s.registry.List()}, nil
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	default:
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Server) handleInitialize() (any, *RPCError) {
	return &InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    ServerCapability{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
	}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var callParams ToolsCallParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "invalid tools/call params", Data: err.Error()}
	}

	tool := s.registry.Get(callParams.Name)
	if tool == nil {
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool not found: %s", callParams.Name)}
	}

	logging.MCPDebug("calling tool %s", callParams.Name)
	result, err := tool.Execute(ctx, callParams.Arguments)
	if err != nil {
		logging.MCPError("tool %s execution failed: %v", callParams.Name, err)
		return ErrorResult(fmt.Sprintf("tool execution failed: %v", err)), nil
	}
	return result, nil
}
