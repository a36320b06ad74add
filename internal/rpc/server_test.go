package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"flightbot/internal/domain"
	"flightbot/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubTool is a minimal tool for dispatch tests.
type stubTool struct {
	name  string
	calls int
	fn    func(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub: " + s.name }

func (s *stubTool) Execute(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return domain.OKResult("done"), nil
}

var _ domain.Tool = (*stubTool)(nil)

// fakeActionStream satisfies flight.FlightService_DoActionServer for direct
// handler tests. Only Send and Context are ever called by the service.
type fakeActionStream struct {
	grpc.ServerStream
	ctx     context.Context
	results []*flight.Result
}

func (f *fakeActionStream) Context() context.Context { return f.ctx }

func (f *fakeActionStream) Send(r *flight.Result) error {
	f.results = append(f.results, r)
	return nil
}

type fakeListFlightsStream struct {
	grpc.ServerStream
	infos []*flight.FlightInfo
}

func (f *fakeListFlightsStream) Send(info *flight.FlightInfo) error {
	f.infos = append(f.infos, info)
	return nil
}

type fakeListActionsStream struct {
	grpc.ServerStream
	types []*flight.ActionType
}

func (f *fakeListActionsStream) Send(at *flight.ActionType) error {
	f.types = append(f.types, at)
	return nil
}

func execAction(t *testing.T, svc *DispatchService, actionType string, body []byte) (*fakeActionStream, error) {
	t.Helper()
	stream := &fakeActionStream{ctx: context.Background()}
	err := svc.DoAction(&flight.Action{Type: actionType, Body: body}, stream)
	return stream, err
}

func mustRequestBody(t *testing.T, req domain.ToolRequest) []byte {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestDoAction_DispatchSuccess(t *testing.T) {
	reg := tool.NewRegistry()
	echo := &stubTool{name: "echo", fn: func(_ context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
		return domain.OKResult(req.Args), nil
	}}
	reg.Register(echo)
	svc := NewDispatchService(reg, testLogger())

	body := mustRequestBody(t, domain.ToolRequest{Name: "echo", Args: map[string]any{"k": "v"}})
	stream, err := execAction(t, svc, ActionExecute, body)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(stream.results) != 1 {
		t.Fatalf("expected exactly 1 reply record, got %d", len(stream.results))
	}

	var result domain.ToolResult
	if err := json.Unmarshal(stream.results[0].Body, &result); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	args, ok := result.Data.(map[string]any)
	if !ok || args["k"] != "v" {
		t.Errorf("expected echoed args, got %#v", result.Data)
	}
	if echo.calls != 1 {
		t.Errorf("expected 1 execution, got %d", echo.calls)
	}
}

func TestDoAction_UnsupportedActionTypeRejectedBeforeDispatch(t *testing.T) {
	reg := tool.NewRegistry()
	echo := &stubTool{name: "echo"}
	reg.Register(echo)
	svc := NewDispatchService(reg, testLogger())

	// A valid body naming a registered tool must not matter: the action
	// type check comes first.
	body := mustRequestBody(t, domain.ToolRequest{Name: "echo"})
	_, err := execAction(t, svc, "other", body)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if echo.calls != 0 {
		t.Errorf("tool executed despite rejected action type")
	}
}

func TestDoAction_BadBodyIsInvalidArgument(t *testing.T) {
	svc := NewDispatchService(tool.NewRegistry(), testLogger())
	_, err := execAction(t, svc, ActionExecute, []byte("{not json"))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestDoAction_UnknownToolIsNotFound(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "present"})
	svc := NewDispatchService(reg, testLogger())

	body := mustRequestBody(t, domain.ToolRequest{Name: "missing"})
	_, err := execAction(t, svc, ActionExecute, body)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDoAction_ToolFailureIsStillAReply(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "flaky", fn: func(context.Context, domain.ToolRequest) (domain.ToolResult, error) {
		return domain.ToolResult{Success: false, Error: "disk on fire"}, nil
	}})
	svc := NewDispatchService(reg, testLogger())

	body := mustRequestBody(t, domain.ToolRequest{Name: "flaky"})
	stream, err := execAction(t, svc, ActionExecute, body)
	if err != nil {
		t.Fatalf("data-level failure must not be a transport fault: %v", err)
	}
	var result domain.ToolResult
	if err := json.Unmarshal(stream.results[0].Body, &result); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if result.Success || result.Error != "disk on fire" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDoAction_EscapedErrorIsInternal(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "broken", fn: func(context.Context, domain.ToolRequest) (domain.ToolResult, error) {
		return domain.ToolResult{}, errors.New("wiring fault")
	}})
	svc := NewDispatchService(reg, testLogger())

	body := mustRequestBody(t, domain.ToolRequest{Name: "broken"})
	_, err := execAction(t, svc, ActionExecute, body)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestDoAction_PanicIsInternal(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "bomb", fn: func(context.Context, domain.ToolRequest) (domain.ToolResult, error) {
		panic("boom")
	}})
	svc := NewDispatchService(reg, testLogger())

	body := mustRequestBody(t, domain.ToolRequest{Name: "bomb"})
	_, err := execAction(t, svc, ActionExecute, body)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal after panic, got %v", err)
	}
}

func TestListFlights_AdvertisesToolsInRegistrationOrder(t *testing.T) {
	reg := tool.NewRegistry()
	for _, n := range []string{"file_analyzer", "web_search", "file_tool"} {
		reg.Register(&stubTool{name: n})
	}
	svc := NewDispatchService(reg, testLogger())

	stream := &fakeListFlightsStream{}
	if err := svc.ListFlights(&flight.Criteria{}, stream); err != nil {
		t.Fatalf("list flights: %v", err)
	}
	if len(stream.infos) != 3 {
		t.Fatalf("expected 3 flights, got %d", len(stream.infos))
	}
	for i, want := range []string{"file_analyzer", "web_search", "file_tool"} {
		desc := stream.infos[i].GetFlightDescriptor()
		if desc == nil || string(desc.Cmd) != want {
			t.Errorf("flight %d: expected %q, got %v", i, want, desc)
		}
		if stream.infos[i].TotalRecords != -1 || stream.infos[i].TotalBytes != -1 {
			t.Errorf("flight %d: totals should be unknown", i)
		}
	}
}

func TestListActions_SingleExecuteAction(t *testing.T) {
	svc := NewDispatchService(tool.NewRegistry(), testLogger())
	stream := &fakeListActionsStream{}
	if err := svc.ListActions(&flight.Empty{}, stream); err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(stream.types) != 1 || stream.types[0].Type != ActionExecute {
		t.Fatalf("expected single %q action, got %v", ActionExecute, stream.types)
	}
}

func TestUnimplementedSurfaces(t *testing.T) {
	svc := NewDispatchService(tool.NewRegistry(), testLogger())
	ctx := context.Background()

	if _, err := svc.GetFlightInfo(ctx, &flight.FlightDescriptor{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("GetFlightInfo: expected Unimplemented, got %v", err)
	}
	if _, err := svc.PollFlightInfo(ctx, &flight.FlightDescriptor{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("PollFlightInfo: expected Unimplemented, got %v", err)
	}
	if _, err := svc.GetSchema(ctx, &flight.FlightDescriptor{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("GetSchema: expected Unimplemented, got %v", err)
	}
	if err := svc.DoGet(&flight.Ticket{}, nil); status.Code(err) != codes.Unimplemented {
		t.Errorf("DoGet: expected Unimplemented, got %v", err)
	}
	if err := svc.DoPut(nil); status.Code(err) != codes.Unimplemented {
		t.Errorf("DoPut: expected Unimplemented, got %v", err)
	}
	if err := svc.DoExchange(nil); status.Code(err) != codes.Unimplemented {
		t.Errorf("DoExchange: expected Unimplemented, got %v", err)
	}
}
