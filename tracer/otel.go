package tracer

import (
	"context"

	"github.com/colorfulnotion/evmhost/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type otelFrame struct {
	ctx   context.Context
	span  trace.Span
	steps int64
}

// OtelTracer emits one span per frame, nested as the frames are.
type OtelTracer struct {
	tracer trace.Tracer
	root   context.Context
	frames []*otelFrame
}

// NewOtelTracer parents the outermost frame span on ctx.
func NewOtelTracer(ctx context.Context, tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer, root: ctx}
}

func (t *OtelTracer) OnEnter(depth int, kind vm.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
	parent := t.root
	if n := len(t.frames); n > 0 {
		parent = t.frames[n-1].ctx
	}
	attrs := []attribute.KeyValue{
		attribute.Int("evm.depth", depth),
		attribute.String("evm.from", from.Hex()),
		attribute.String("evm.to", to.Hex()),
		attribute.Int64("evm.gas", int64(gas)),
		attribute.Int("evm.input_len", len(input)),
	}
	if value != nil {
		attrs = append(attrs, attribute.String("evm.value", value.Dec()))
	}
	ctx, span := t.tracer.Start(parent, kind.String(), trace.WithAttributes(attrs...))
	t.frames = append(t.frames, &otelFrame{ctx: ctx, span: span})
}

func (t *OtelTracer) OnExit(depth int, output []byte, gasUsed uint64, status vm.Status, err error) {
	n := len(t.frames)
	if n == 0 {
		return
	}
	f := t.frames[n-1]
	t.frames = t.frames[:n-1]
	f.span.SetAttributes(
		attribute.Int64("evm.gas_used", int64(gasUsed)),
		attribute.Int64("evm.steps", f.steps),
		attribute.Int("evm.output_len", len(output)),
		attribute.String("evm.status", status.String()),
	)
	switch {
	case err != nil:
		f.span.RecordError(err)
		f.span.SetStatus(codes.Error, err.Error())
	case !status.IsSuccess():
		f.span.SetStatus(codes.Error, status.String())
	default:
		f.span.SetStatus(codes.Ok, "")
	}
	f.span.End()
}

func (t *OtelTracer) OnStep(*vm.Interpreter) {
	if n := len(t.frames); n > 0 {
		t.frames[n-1].steps++
	}
}

func (t *OtelTracer) OnStepEnd(*vm.Interpreter, vm.Status) {}
