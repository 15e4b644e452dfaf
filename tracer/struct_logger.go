package tracer

import (
	"encoding/json"
	"io"

	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// StructLog is one executed instruction.
type StructLog struct {
	Pc      uint64          `json:"pc"`
	Op      string          `json:"op"`
	Gas     hexutil.Uint64  `json:"gas"`
	GasCost hexutil.Uint64  `json:"gasCost"`
	Depth   int             `json:"depth"`
	Stack   []*hexutil.Big  `json:"stack"`
	MemSize int             `json:"memSize"`
	Refund  int64           `json:"refund"`
	Status  string          `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

type pendingStep struct {
	log StructLog
	gas uint64
}

// StructLogger records every step. With a writer it also streams each
// record as a JSON line.
type StructLogger struct {
	out     io.Writer
	enc     *json.Encoder
	limit   int
	logs    []StructLog
	pending []pendingStep
}

// NewStructLogger keeps at most limit records in memory; zero keeps all.
func NewStructLogger(out io.Writer, limit int) *StructLogger {
	l := &StructLogger{out: out, limit: limit}
	if out != nil {
		l.enc = json.NewEncoder(out)
	}
	return l
}

func (l *StructLogger) StructLogs() []StructLog {
	return l.logs
}

func (l *StructLogger) OnEnter(int, vm.CallKind, common.Address, common.Address, []byte, uint64, *uint256.Int) {
}

func (l *StructLogger) OnExit(int, []byte, uint64, vm.Status, error) {}

func (l *StructLogger) OnStep(interp *vm.Interpreter) {
	data := interp.Stack().Data()
	stack := make([]*hexutil.Big, len(data))
	for i := range data {
		stack[i] = (*hexutil.Big)(data[i].ToBig())
	}
	gas := interp.Gas().Remaining()
	l.pending = append(l.pending, pendingStep{
		gas: gas,
		log: StructLog{
			Pc:      interp.PC(),
			Op:      interp.Op().String(),
			Gas:     hexutil.Uint64(gas),
			Depth:   interp.Depth(),
			Stack:   stack,
			MemSize: interp.Memory().Len(),
			Refund:  interp.Gas().Refund(),
		},
	})
}

func (l *StructLogger) OnStepEnd(interp *vm.Interpreter, status vm.Status) {
	if len(l.pending) == 0 {
		return
	}
	p := l.pending[len(l.pending)-1]
	l.pending = l.pending[:len(l.pending)-1]
	if after := interp.Gas().Remaining(); after <= p.gas {
		p.log.GasCost = hexutil.Uint64(p.gas - after)
	}
	if status.IsTerminal() {
		p.log.Status = status.String()
		if err := interp.Err(); err != nil {
			p.log.Error = err.Error()
		}
	}
	if l.limit == 0 || len(l.logs) < l.limit {
		l.logs = append(l.logs, p.log)
	}
	if l.enc != nil {
		if err := l.enc.Encode(&p.log); err != nil {
			log.Warn(log.TracerMonitoring, "struct log write failed", "err", err)
		}
	}
}
