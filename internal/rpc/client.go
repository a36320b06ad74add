package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"flightbot/internal/domain"
)

// ToolsClient talks to a dispatch service. A single mutex serializes all
// calls: one request is in flight per client at any time, matching the
// strictly sequential tool execution of a chat turn. There is no pipelining
// and no retry.
type ToolsClient struct {
	mu     sync.Mutex
	fc     flight.Client
	addr   string
	logger *slog.Logger
}

// Connect dials the dispatch service and performs one handshake round trip.
// It fails when the endpoint is unreachable or the handshake does not
// complete. The connection is plaintext.
func Connect(ctx context.Context, addr string, logger *slog.Logger) (*ToolsClient, error) {
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to tools service %s: %w", addr, err)
	}

	c := &ToolsClient{fc: fc, addr: addr, logger: logger}
	if err := c.handshake(ctx); err != nil {
		fc.Close()
		return nil, fmt.Errorf("handshake with tools service %s: %w", addr, err)
	}
	logger.Debug("connected to tools service", "addr", addr)
	return c, nil
}

func (c *ToolsClient) handshake(ctx context.Context) error {
	stream, err := c.fc.Handshake(ctx)
	if err != nil {
		return err
	}
	if err := stream.Send(&flight.HandshakeRequest{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	_, err = stream.Recv()
	return err
}

// ListTools discovers the registered tool names, in the server's
// registration order. Descriptor commands must be valid UTF-8 text.
func (c *ToolsClient) ListTools(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.fc.ListFlights(ctx, &flight.Criteria{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var names []string
	for {
		info, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		desc := info.GetFlightDescriptor()
		if desc == nil {
			continue
		}
		if !utf8.Valid(desc.Cmd) {
			return nil, fmt.Errorf("decode tool name: descriptor command is not valid UTF-8")
		}
		names = append(names, string(desc.Cmd))
	}
	return names, nil
}

// ExecuteTool issues exactly one dispatch call and expects exactly one reply
// record carrying the JSON-encoded result.
func (c *ToolsClient) ExecuteTool(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("encode tool request: %w", err)
	}

	c.logger.Debug("executing tool", "tool", req.Name)
	stream, err := c.fc.DoAction(ctx, &flight.Action{Type: ActionExecute, Body: body})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("execute tool %s: %w", req.Name, err)
	}

	reply, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return domain.ToolResult{}, errors.New("no result received from tool execution")
	}
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("execute tool %s: %w", req.Name, err)
	}

	var result domain.ToolResult
	if err := json.Unmarshal(reply.Body, &result); err != nil {
		return domain.ToolResult{}, fmt.Errorf("decode tool result: %w", err)
	}
	return result, nil
}

func (c *ToolsClient) Addr() string {
	return c.addr
}

func (c *ToolsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fc.Close()
}
