package vm

import (
	"context"

	"github.com/colorfulnotion/evmhost/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Contract is the execution context of one frame: who called, whose
// storage it runs against, and the code being run.
type Contract struct {
	Caller      common.Address
	Address     common.Address
	CodeAddress common.Address
	Value       *uint256.Int
	Input       []byte
	Code        *Code
}

func NewContract(caller, address common.Address, value *uint256.Int, input []byte, code *Code) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		Caller:      caller,
		Address:     address,
		CodeAddress: address,
		Value:       value,
		Input:       input,
		Code:        code,
	}
}

// Interpreter steps one frame. It is Running until a step produces a
// terminal Status, after which it is Halted and Step is a no-op.
type Interpreter struct {
	contract   *Contract
	pc         uint64
	stack      *Stack
	memory     *Memory
	gas        *Gas
	returnData []byte
	output     []byte
	isStatic   bool
	depth      int
	status     Status
	err        error
	steps      uint64
}

func NewInterpreter(contract *Contract, gasLimit uint64, isStatic bool, depth int) *Interpreter {
	if contract.Code == nil {
		contract.Code = NewCode(nil)
	}
	return &Interpreter{
		contract: contract,
		stack:    newstack(),
		memory:   NewMemory(),
		gas:      NewGas(gasLimit),
		isStatic: isStatic,
		depth:    depth,
	}
}

func (in *Interpreter) Contract() *Contract { return in.contract }
func (in *Interpreter) PC() uint64          { return in.pc }
func (in *Interpreter) Stack() *Stack       { return in.stack }
func (in *Interpreter) Memory() *Memory     { return in.memory }
func (in *Interpreter) Gas() *Gas           { return in.gas }
func (in *Interpreter) ReturnData() []byte  { return in.returnData }
func (in *Interpreter) Output() []byte      { return in.output }
func (in *Interpreter) IsStatic() bool      { return in.isStatic }
func (in *Interpreter) Depth() int          { return in.depth }
func (in *Interpreter) Status() Status      { return in.status }
func (in *Interpreter) Steps() uint64       { return in.steps }

// Err is the host failure behind a FatalHostError halt.
func (in *Interpreter) Err() error { return in.err }

// Op is the instruction at the current program counter.
func (in *Interpreter) Op() OpCode {
	return in.contract.Code.GetOp(in.pc)
}

// Halt forces the frame into a terminal status. Continue is ignored.
func (in *Interpreter) Halt(status Status, err error) {
	if !status.IsTerminal() || in.status.IsTerminal() {
		return
	}
	in.status = status
	if err != nil && in.err == nil {
		in.err = err
	}
}

func (in *Interpreter) fatal(err error) Status {
	in.err = err
	return FatalHostError
}

// Step executes the instruction at the program counter.
func (in *Interpreter) Step(ctx context.Context, host Host) Status {
	if in.status.IsTerminal() {
		return in.status
	}
	in.steps++
	st := in.step(ctx, host)
	if st.IsTerminal() {
		in.status = st
		log.Trace(log.InterpMonitoring, "frame halted", "depth", in.depth, "status", st, "pc", in.pc, "gasLeft", in.gas.Remaining())
	}
	return st
}

func (in *Interpreter) step(ctx context.Context, host Host) Status {
	code := in.contract.Code
	if in.pc >= uint64(code.Len()) {
		return Stop
	}
	op := code.GetOp(in.pc)
	operation := jumpTable[op]
	if operation == nil {
		if unsupportedOps[op] {
			return UnsupportedOperation
		}
		return InvalidOpcode
	}
	if sLen := in.stack.Len(); sLen < operation.minStack {
		return StackUnderflow
	} else if sLen > operation.maxStack {
		return StackOverflow
	}
	if in.isStatic && operation.writes {
		return StaticStateChange
	}
	if !in.gas.Charge(operation.constantGas) {
		return OutOfGas
	}
	if operation.memorySize != nil {
		memSize, overflow := operation.memorySize(in.stack)
		if overflow {
			return OutOfBoundsAccess
		}
		if memSize > 0 {
			cost, ok := memoryGasCost(in.memory, memSize)
			if !ok || !in.gas.Charge(cost) {
				return OutOfGas
			}
			in.memory.Resize(toWordSize(memSize) * 32)
		}
	}
	st := operation.execute(ctx, in, host)
	if st == Continue && !operation.jumps {
		in.pc++
	}
	return st
}

// Run steps the frame to completion, consulting the host before and after
// every instruction. A terminal status from StepEnd halts the frame; a
// Continue from StepEnd never revives a halted one.
func (in *Interpreter) Run(ctx context.Context, host Host) *Result {
	for !in.status.IsTerminal() {
		if st := host.Step(in); st.IsTerminal() {
			in.Halt(st, nil)
			break
		}
		st := in.Step(ctx, host)
		if end := host.StepEnd(in, st); end.IsTerminal() && end != st {
			in.status = end
		}
	}
	return in.Result()
}

// Result is the raw outcome of a frame.
type Result struct {
	Status    Status
	GasLeft   uint64
	GasRefund int64
	Output    []byte
	Err       error
}

func (in *Interpreter) Result() *Result {
	return &Result{
		Status:    in.status,
		GasLeft:   in.gas.Remaining(),
		GasRefund: in.gas.Refund(),
		Output:    in.output,
		Err:       in.err,
	}
}
