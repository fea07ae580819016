package coordinator

import (
	"context"
	"fmt"
	"sync"

	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/nebula-analytics/nebula/errs"
)

// msgpackCodec registers gopkg.in/vmihailenco/msgpack.v2 as a grpc wire
// codec, per SPEC_FULL.md §4.5: concrete byte framing between nodes stays
// an external concern, but this is the seam where it plugs in.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v interface{}) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                               { return "msgpack" }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

const (
	taskMethod  = "/nebula.Node/Task"
	stateMethod = "/nebula.Node/State"
)

// GRPCConnector dials nodes with google.golang.org/grpc and exchanges
// Task/TaskResult/NodeState values using the msgpack codec, per
// SPEC_FULL.md §4.5.
type GRPCConnector struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

// NewGRPCConnector constructs a connector; extra dial options (e.g. TLS
// credentials) are appended after the codec/insecure defaults.
func NewGRPCConnector(opts ...grpc.DialOption) *GRPCConnector {
	base := []grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(msgpackCodec{}.Name())),
	}
	return &GRPCConnector{
		conns: make(map[string]*grpc.ClientConn),
		opts:  append(base, opts...),
	}
}

func (g *GRPCConnector) dial(node string) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cc, ok := g.conns[node]; ok {
		return cc, nil
	}
	cc, err := grpc.Dial(node, g.opts...)
	if err != nil {
		return nil, err
	}
	g.conns[node] = cc
	return cc, nil
}

func (g *GRPCConnector) Task(ctx context.Context, node string, t Task) (TaskResult, error) {
	cc, err := g.dial(node)
	if err != nil {
		return TaskResult{}, errs.NodeUnreachable.New(fmt.Sprintf("dial %s: %v", node, err))
	}
	var reply TaskResult
	if err := cc.Invoke(ctx, taskMethod, &t, &reply); err != nil {
		return TaskResult{}, errs.NodeUnreachable.New(fmt.Sprintf("%s task: %v", node, err))
	}
	return reply, nil
}

func (g *GRPCConnector) State(ctx context.Context, node string) (NodeState, error) {
	cc, err := g.dial(node)
	if err != nil {
		return NodeState{}, errs.NodeUnreachable.New(fmt.Sprintf("dial %s: %v", node, err))
	}
	var reply NodeState
	if err := cc.Invoke(ctx, stateMethod, &struct{}{}, &reply); err != nil {
		return NodeState{}, errs.NodeUnreachable.New(fmt.Sprintf("%s state: %v", node, err))
	}
	return reply, nil
}

// Close tears down every cached dial connection.
func (g *GRPCConnector) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	for node, cc := range g.conns {
		if err := cc.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", node, err)
		}
	}
	g.conns = make(map[string]*grpc.ClientConn)
	return first
}
