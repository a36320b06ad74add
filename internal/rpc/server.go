package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"flightbot/internal/domain"
	"flightbot/internal/metrics"
	"flightbot/internal/tool"
)

// ActionExecute is the only action type the dispatch service accepts.
const ActionExecute = "execute"

// DispatchService exposes a tool registry over Arrow Flight. Tool discovery
// rides on ListFlights (one flight per tool, name in the descriptor command
// field) and execution on DoAction with the "execute" action type. Everything
// else on the Flight surface is explicitly unimplemented.
//
// Handlers run concurrently; the registry lock covers only lookup and
// snapshot, never a tool execution.
type DispatchService struct {
	flight.BaseFlightServer
	registry *tool.Registry
	logger   *slog.Logger
}

func NewDispatchService(registry *tool.Registry, logger *slog.Logger) *DispatchService {
	return &DispatchService{registry: registry, logger: logger}
}

// Handshake replies with a single empty response. The transport carries no
// authentication.
func (s *DispatchService) Handshake(stream flight.FlightService_HandshakeServer) error {
	return stream.Send(&flight.HandshakeResponse{})
}

// ListFlights advertises one flight per registered tool, in registration
// order. Record and byte totals are unknown (-1): tools produce a single
// result record of unpredictable size.
func (s *DispatchService) ListFlights(_ *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	for _, name := range s.registry.Names() {
		info := &flight.FlightInfo{
			FlightDescriptor: &flight.FlightDescriptor{
				Type: flight.DescriptorCMD,
				Cmd:  []byte(name),
			},
			TotalRecords: -1,
			TotalBytes:   -1,
		}
		if err := stream.Send(info); err != nil {
			return err
		}
	}
	return nil
}

// DoAction dispatches one tool execution. The action type is validated
// before the payload is decoded or the registry touched. A tool that
// reports failure still produces a normal reply record; only an escaped
// error (or panic) becomes a transport fault.
func (s *DispatchService) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	if action.Type != ActionExecute {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("unsupported action type %q", action.Type))
	}

	var req domain.ToolRequest
	if err := json.Unmarshal(action.Body, &req); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("decode tool request: %v", err))
	}

	t, ok := s.registry.Find(req.Name)
	if !ok {
		return status.Error(codes.NotFound, fmt.Sprintf("tool not found: %s", req.Name))
	}

	s.logger.Info("dispatching tool", "tool", req.Name)
	metrics.ToolExecutions.Inc()
	metrics.ActiveDispatches.Inc()
	start := time.Now()
	result, err := runTool(stream.Context(), t, req)
	metrics.ActiveDispatches.Dec()
	metrics.ToolLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ToolFailures.Inc()
		s.logger.Error("tool escaped an error", "tool", req.Name, "error", err)
		return status.Error(codes.Internal, fmt.Sprintf("tool %s: %v", req.Name, err))
	}
	if !result.Success {
		metrics.ToolFailures.Inc()
	}

	body, err := json.Marshal(result)
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("encode tool result: %v", err))
	}
	return stream.Send(&flight.Result{Body: body})
}

// runTool invokes the tool, converting a panic into an escaped error so a
// misbehaving tool cannot take the server down.
func runTool(ctx context.Context, t domain.Tool, req domain.ToolRequest) (result domain.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, req)
}

// ListActions names the single supported action type.
func (s *DispatchService) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	return stream.Send(&flight.ActionType{
		Type:        ActionExecute,
		Description: "Execute a registered tool with a JSON request body",
	})
}

// The remaining Flight surfaces have no meaning for tool dispatch and fail
// fast rather than blocking or crashing.

func (s *DispatchService) GetFlightInfo(context.Context, *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	return nil, status.Error(codes.Unimplemented, "get_flight_info is not implemented")
}

func (s *DispatchService) PollFlightInfo(context.Context, *flight.FlightDescriptor) (*flight.PollInfo, error) {
	return nil, status.Error(codes.Unimplemented, "poll_flight_info is not implemented")
}

func (s *DispatchService) GetSchema(context.Context, *flight.FlightDescriptor) (*flight.SchemaResult, error) {
	return nil, status.Error(codes.Unimplemented, "get_schema is not implemented")
}

func (s *DispatchService) DoGet(*flight.Ticket, flight.FlightService_DoGetServer) error {
	return status.Error(codes.Unimplemented, "do_get is not implemented")
}

func (s *DispatchService) DoPut(flight.FlightService_DoPutServer) error {
	return status.Error(codes.Unimplemented, "do_put is not implemented")
}

func (s *DispatchService) DoExchange(flight.FlightService_DoExchangeServer) error {
	return status.Error(codes.Unimplemented, "do_exchange is not implemented")
}

// Server wraps the Flight server lifecycle around a DispatchService.
type Server struct {
	srv    flight.Server
	logger *slog.Logger
}

type ServerConfig struct {
	Addr   string
	Logger *slog.Logger
}

// NewServer binds the listener and registers the dispatch service. Call
// Serve to start accepting and Shutdown to stop.
func NewServer(cfg ServerConfig, registry *tool.Registry) (*Server, error) {
	srv := flight.NewServerWithMiddleware(nil)
	if err := srv.Init(cfg.Addr); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv.RegisterFlightService(NewDispatchService(registry, cfg.Logger))

	for _, desc := range registry.Descriptors() {
		cfg.Logger.Info("tool registered", "tool", desc.Name, "description", desc.Description)
	}
	return &Server{srv: srv, logger: cfg.Logger}, nil
}

// Addr returns the bound listen address, useful when the config asked for
// port 0.
func (s *Server) Addr() string {
	return s.srv.Addr().String()
}

func (s *Server) Serve() error {
	s.logger.Info("tools server listening", "addr", s.Addr())
	return s.srv.Serve()
}

func (s *Server) Shutdown() {
	s.logger.Info("tools server shutting down")
	s.srv.Shutdown()
}
