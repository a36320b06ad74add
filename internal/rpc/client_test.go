package rpc

import (
	"context"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"flightbot/internal/domain"
	"flightbot/internal/tool"
)

// startServer runs a dispatch server on a loopback port for the duration of
// the test.
func startServer(t *testing.T, reg *tool.Registry) string {
	t.Helper()
	srv, err := NewServer(ServerConfig{Addr: "localhost:0", Logger: testLogger()}, reg)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return srv.Addr()
}

func connect(t *testing.T, addr string) *ToolsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, addr, testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_ListTools(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "file_analyzer"})
	reg.Register(&stubTool{name: "web_search"})
	addr := startServer(t, reg)

	c := connect(t, addr)
	names, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"file_analyzer", "web_search"}) {
		t.Fatalf("unexpected tool names %v", names)
	}
}

func TestClient_ExecuteTool_RoundTripPreservesNameAndArgs(t *testing.T) {
	reg := tool.NewRegistry()
	var seen domain.ToolRequest
	reg.Register(&stubTool{name: "echo", fn: func(_ context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
		seen = req
		return domain.OKResult(req.Args), nil
	}})
	addr := startServer(t, reg)
	c := connect(t, addr)

	args := map[string]any{"path": "/tmp", "recursive": true, "depth": float64(3)}
	result, err := c.ExecuteTool(context.Background(), domain.ToolRequest{Name: "echo", Args: args})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if seen.Name != "echo" {
		t.Errorf("server saw name %q", seen.Name)
	}
	if !reflect.DeepEqual(seen.Args, args) {
		t.Errorf("args mangled in transit: sent %v, server saw %v", args, seen.Args)
	}
	if !result.Success || !reflect.DeepEqual(result.Data, args) {
		t.Errorf("args mangled in reply: %+v", result)
	}
}

func TestClient_ExecuteTool_UnknownToolIsNotFound(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "file_analyzer"})
	reg.Register(&stubTool{name: "web_search"})
	addr := startServer(t, reg)
	c := connect(t, addr)

	// Both registered tools dispatch fine.
	for _, name := range []string{"file_analyzer", "web_search"} {
		if _, err := c.ExecuteTool(context.Background(), domain.ToolRequest{Name: name}); err != nil {
			t.Fatalf("execute %s: %v", name, err)
		}
	}

	_, err := c.ExecuteTool(context.Background(), domain.ToolRequest{Name: "missing"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestConnect_UnreachableEndpoint(t *testing.T) {
	// Grab a port that is guaranteed closed.
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := Connect(ctx, addr, testLogger()); err == nil {
		t.Fatal("expected connect to fail against closed port")
	}
}

// silentServer completes execute actions without sending any result record
// and advertises a descriptor that is not valid UTF-8.
type silentServer struct {
	flight.BaseFlightServer
}

func (s *silentServer) Handshake(stream flight.FlightService_HandshakeServer) error {
	return stream.Send(&flight.HandshakeResponse{})
}

func (s *silentServer) DoAction(*flight.Action, flight.FlightService_DoActionServer) error {
	return nil
}

func (s *silentServer) ListFlights(_ *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	return stream.Send(&flight.FlightInfo{
		FlightDescriptor: &flight.FlightDescriptor{
			Type: flight.DescriptorCMD,
			Cmd:  []byte{0xff, 0xfe, 0xfd},
		},
	})
}

func startRawServer(t *testing.T, svc flight.FlightServer) string {
	t.Helper()
	srv := flight.NewServerWithMiddleware(nil)
	if err := srv.Init("localhost:0"); err != nil {
		t.Fatalf("init: %v", err)
	}
	srv.RegisterFlightService(svc)
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return srv.Addr().String()
}

func TestClient_ExecuteTool_NoResultRecord(t *testing.T) {
	addr := startRawServer(t, &silentServer{})
	c := connect(t, addr)

	_, err := c.ExecuteTool(context.Background(), domain.ToolRequest{Name: "anything"})
	if err == nil || !strings.Contains(err.Error(), "no result received") {
		t.Fatalf("expected no-result error, got %v", err)
	}
}

func TestClient_ListTools_InvalidUTF8Descriptor(t *testing.T) {
	addr := startRawServer(t, &silentServer{})
	c := connect(t, addr)

	_, err := c.ListTools(context.Background())
	if err == nil || !strings.Contains(err.Error(), "UTF-8") {
		t.Fatalf("expected UTF-8 decode error, got %v", err)
	}
}

// badHandshakeServer rejects every handshake attempt.
type badHandshakeServer struct {
	flight.BaseFlightServer
}

func (s *badHandshakeServer) Handshake(flight.FlightService_HandshakeServer) error {
	return status.Error(codes.Unauthenticated, "handshake rejected")
}

func TestConnect_HandshakeFailure(t *testing.T) {
	addr := startRawServer(t, &badHandshakeServer{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := Connect(ctx, addr, testLogger()); err == nil {
		t.Fatal("expected handshake failure")
	}
}
