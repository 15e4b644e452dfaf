package tracer

import (
	"fmt"

	"github.com/colorfulnotion/evmhost/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/xlab/treeprint"
)

// CallFrame is one node of the call tree.
type CallFrame struct {
	Type    string         `json:"type"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Value   *hexutil.Big   `json:"value,omitempty"`
	Gas     hexutil.Uint64 `json:"gas"`
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Input   hexutil.Bytes  `json:"input"`
	Output  hexutil.Bytes  `json:"output,omitempty"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Calls   []*CallFrame   `json:"calls,omitempty"`
	Steps   uint64         `json:"steps"`
}

// CallTracer builds the tree of frames of one transaction.
type CallTracer struct {
	root  *CallFrame
	stack []*CallFrame
}

func NewCallTracer() *CallTracer {
	return &CallTracer{}
}

// Root is nil until the first frame is entered.
func (t *CallTracer) Root() *CallFrame {
	return t.root
}

func (t *CallTracer) OnEnter(depth int, kind vm.CallKind, from, to common.Address, input []byte, gas uint64, value *uint256.Int) {
	f := &CallFrame{
		Type:  kind.String(),
		From:  from,
		To:    to,
		Gas:   hexutil.Uint64(gas),
		Input: append([]byte(nil), input...),
	}
	if value != nil && !value.IsZero() {
		f.Value = (*hexutil.Big)(value.ToBig())
	}
	if len(t.stack) == 0 {
		t.root = f
	} else {
		parent := t.stack[len(t.stack)-1]
		parent.Calls = append(parent.Calls, f)
	}
	t.stack = append(t.stack, f)
}

func (t *CallTracer) OnExit(depth int, output []byte, gasUsed uint64, status vm.Status, err error) {
	if len(t.stack) == 0 {
		return
	}
	f := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	f.GasUsed = hexutil.Uint64(gasUsed)
	f.Output = append([]byte(nil), output...)
	f.Status = status.String()
	if err != nil {
		f.Error = err.Error()
	}
}

func (t *CallTracer) OnStep(*vm.Interpreter) {
	if len(t.stack) > 0 {
		t.stack[len(t.stack)-1].Steps++
	}
}

func (t *CallTracer) OnStepEnd(*vm.Interpreter, vm.Status) {}

func (f *CallFrame) label() string {
	s := fmt.Sprintf("%s %s -> %s gas=%d used=%d steps=%d %s", f.Type, f.From.Hex(), f.To.Hex(), uint64(f.Gas), uint64(f.GasUsed), f.Steps, f.Status)
	if f.Error != "" {
		s += " (" + f.Error + ")"
	}
	return s
}

func (f *CallFrame) addTo(tree treeprint.Tree) {
	for _, c := range f.Calls {
		if len(c.Calls) == 0 {
			tree.AddNode(c.label())
			continue
		}
		c.addTo(tree.AddBranch(c.label()))
	}
}

// ToTree renders the frame and its descendants.
func (f *CallFrame) ToTree() treeprint.Tree {
	tree := treeprint.NewWithRoot(f.label())
	f.addTo(tree)
	return tree
}

func (t *CallTracer) String() string {
	if t.root == nil {
		return "(no frames)"
	}
	return t.root.ToTree().String()
}
