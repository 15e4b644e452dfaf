package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCaller   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testContract = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func runCode(host Host, code []byte, input []byte, gas uint64, static bool) (*Interpreter, *Result) {
	contract := NewContract(testCaller, testContract, uint256.NewInt(0), input, NewCode(code))
	interp := NewInterpreter(contract, gas, static, 0)
	res := interp.Run(context.Background(), host)
	return interp, res
}

func RunEVMBytecode(bytecode []byte, input []byte) ([]byte, error) {
	host := NewDummyHost(nil)
	_, res := runCode(host, bytecode, input, 1_000_000, false)
	if res.Status != Return && res.Status != Stop {
		return nil, fmt.Errorf("execution ended with %s", res.Status)
	}
	return res.Output, nil
}

func TestSimpleAdd(t *testing.T) {
	// PUSH1 0x02 PUSH1 0x03 ADD MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
	code := []byte{
		0x60, 0x02, // PUSH1 0x02
		0x60, 0x03, // PUSH1 0x03
		0x01,       // ADD
		0x60, 0x00, // PUSH1 0x00
		0x52,       // MSTORE
		0x60, 0x20, // PUSH1 0x20
		0x60, 0x00, // PUSH1 0x00
		0xf3, // RETURN
	}
	_, res := runCode(NewDummyHost(nil), code, nil, 100_000, false)
	require.Equal(t, Return, res.Status)
	assert.Equal(t, uint64(5), new(big.Int).SetBytes(res.Output).Uint64())
	assert.Equal(t, uint64(100_000-24), res.GasLeft)
}

func getRunSelector(idx uint8) []byte {
	// Method selector for run(uint8): first 4 bytes of keccak256("run(uint8)")
	selector := []byte{0xc4, 0xe5, 0x55, 0x7a}

	// ABI encode the uint8 parameter (32 bytes, big-endian)
	param := make([]byte, 32)
	param[31] = idx // uint8 goes in the least significant byte

	// Combine selector + parameter
	return append(selector, param...)
}

func TestRunRecipeIdx0(t *testing.T) {
	// solc --optimize --bin-runtime Recipes.sol
	// get the "Binary of the runtime part:"
	bytecodeHex := "608060405234801561000f575f5ffd5b5060043610610029575f3560e01c8063c4e5557a1461002d575b5f5ffd5b61004061003b36600461027f565b610052565b60405190815260200160405180910390f35b5f8160ff165f0361006d57610067600a6100a0565b92915050565b8160ff166001036100845761006760056003610113565b8160ff1660020361009957610067600a610179565b505f919050565b5f815f036100af57505f919050565b81600114806100be5750816002145b156100cb57506001919050565b5f6001808260035b86811161010857826100e585876102b3565b6100ef91906102b3565b939450919291829150610101816102c6565b90506100d3565b509095945050505050565b5f82158061011f575081155b8061012957508282115b1561013557505f610067565b826101408484610228565b61015e61014e6001876102de565b6101596001876102de565b610228565b61016891906102f1565b6101729190610308565b9392505050565b5f815f0361018957506001919050565b8160010361019957506001919050565b6001805f60025b85811161021e576101b28160026102b3565b846101be6001846102de565b6101c99060036102f1565b6101d391906102f1565b846101df8460026102f1565b6101ea9060016102b3565b6101f491906102f1565b6101fe91906102b3565b6102089190610308565b929350829150610217816102c6565b90506101a0565b5090949350505050565b5f8282111561023857505f610067565b60015f5b838110156102775761024f8160016102b3565b61025982876102de565b61026390846102f1565b61026d9190610308565b915060010161023c565b509392505050565b5f6020828403121561028f575f5ffd5b813560ff81168114610172575f5ffd5b634e487b7160e01b5f52601160045260245ffd5b808201808211156100675761006761029f565b5f600182016102d7576102d761029f565b5060010190565b818103818111156100675761006761029f565b80820281158282048414176100675761006761029f565b5f8261032257634e487b7160e01b5f52601260045260245ffd5b50049056fea26469706673582212202ba054cf30a1b9a860d56e0a582481cd9c33c5c80f6fc6f4b02d82a199c6e80064736f6c634300081e0033"
	bytecode := common.FromHex(bytecodeHex)

	// tribonacci(10), narayana(5, 3), motzkin(10)
	expected := []int64{149, 12, 2188}
	for i := 0; i < 3; i++ {
		out, err := RunEVMBytecode(bytecode, getRunSelector(uint8(i)))
		if err != nil {
			t.Fatal(err)
		}
		result := new(big.Int).SetBytes(out)
		if result.Cmp(big.NewInt(expected[i])) != 0 {
			t.Fatalf("run(%d): expected %d, got %s", i, expected[i], result.String())
		}
	}
}

func TestSloadColdThenWarm(t *testing.T) {
	host := NewDummyHost(nil)
	host.SetState(testContract, common.Hash{31: 1}, common.Hash{31: 7})

	// PUSH1 1 SLOAD POP PUSH1 1 SLOAD POP STOP
	code := []byte{0x60, 0x01, 0x54, 0x50, 0x60, 0x01, 0x54, 0x50, 0x00}
	_, res := runCode(host, code, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	assert.Equal(t, uint64(3+2100+2+3+100+2), 100_000-res.GasLeft)
}

func TestOutOfGasBeforeUnderflow(t *testing.T) {
	// PUSH1 1 SLOAD: the cold read cannot be paid from 1997 gas
	code := []byte{0x60, 0x01, 0x54, 0x00}
	interp, res := runCode(NewDummyHost(nil), code, nil, 2000, false)
	assert.Equal(t, OutOfGas, res.Status)
	assert.Equal(t, uint64(1997), interp.Gas().Remaining())
}

func TestSstoreRefundReversal(t *testing.T) {
	host := NewDummyHost(nil)
	code := []byte{
		0x60, 0x01, 0x60, 0x00, 0x55, // slot0 = 1 (0 -> 1)
		0x60, 0x00, 0x60, 0x00, 0x55, // slot0 = 0 (back to original)
		0x00,
	}
	_, res := runCode(host, code, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	assert.Equal(t, uint64(3+3+2100+20000+3+3+100), 100_000-res.GasLeft)
	assert.Equal(t, int64(19900), res.GasRefund)
	assert.Equal(t, common.Hash{}, host.GetState(testContract, common.Hash{}))
}

func TestSstoreSentry(t *testing.T) {
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00}
	host := NewDummyHost(nil)
	_, res := runCode(host, code, nil, 2306, false)
	assert.Equal(t, OutOfGas, res.Status)
	assert.Equal(t, common.Hash{}, host.GetState(testContract, common.Hash{}))
}

func TestHaltStatuses(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want Status
	}{
		{"invalid opcode", []byte{0x0c}, InvalidOpcode},
		{"designated invalid", []byte{0xfe}, InvalidOpcode},
		{"tload unsupported", []byte{0x60, 0x00, 0x5c}, UnsupportedOperation},
		{"mcopy unsupported", []byte{0x5e}, UnsupportedOperation},
		{"stack underflow", []byte{0x01}, StackUnderflow},
		{"stack overflow", bytes.Repeat([]byte{0x5f}, 1025), StackOverflow},
		{"invalid jump", []byte{0x60, 0x03, 0x56, 0x00}, InvalidJump},
		{"jump into push data", []byte{0x60, 0x03, 0x56, 0x60, 0x5b}, InvalidJump},
		{"valid jump", []byte{0x60, 0x04, 0x56, 0xfe, 0x5b, 0x00}, Stop},
		{"implicit stop", []byte{0x60, 0x01}, Stop},
		{"revert", []byte{0x60, 0x00, 0x60, 0x00, 0xfd}, Revert},
		{"returndatacopy out of bounds", []byte{0x60, 0x01, 0x60, 0x00, 0x60, 0x00, 0x3e}, OutOfBoundsAccess},
		{"memory offset overflow", append(append([]byte{0x60, 0x01, 0x7f}, bytes.Repeat([]byte{0xff}, 32)...), 0x20), OutOfBoundsAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res := runCode(NewDummyHost(nil), tt.code, nil, 100_000, false)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestHaltedInterpreterDoesNotStep(t *testing.T) {
	host := NewDummyHost(nil)
	interp, res := runCode(host, []byte{0x00}, nil, 100, false)
	require.Equal(t, Stop, res.Status)
	steps := interp.Steps()
	assert.Equal(t, Stop, interp.Step(context.Background(), host))
	assert.Equal(t, steps, interp.Steps())
}

func TestStaticFrameRejectsStateChange(t *testing.T) {
	host := NewDummyHost(nil)
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00}
	_, res := runCode(host, code, nil, 100_000, true)
	assert.Equal(t, StaticStateChange, res.Status)
	assert.True(t, host.AddSlotToAccessList(testContract, common.Hash{}), "host must not be consulted")

	// LOG0 with empty data
	_, res = runCode(host, []byte{0x60, 0x00, 0x60, 0x00, 0xa0}, nil, 100_000, true)
	assert.Equal(t, StaticStateChange, res.Status)
	assert.Empty(t, host.Logs())
}

func TestLogAndBlockhash(t *testing.T) {
	env := DefaultEnvironment()
	env.Block.Number = 10
	host := NewDummyHost(env)
	hash9 := common.HexToHash("0x09")
	host.SetBlockHash(9, hash9)

	// LOG1 topic 0xaa, 1 byte of data at memory 0
	code := []byte{0x60, 0xaa, 0x60, 0x00, 0x53, 0x60, 0xbb, 0x60, 0x01, 0x60, 0x00, 0xa1, 0x00}
	_, res := runCode(host, code, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	require.Len(t, host.Logs(), 1)
	assert.Equal(t, []byte{0xaa}, host.Logs()[0].Data)
	assert.Equal(t, common.Hash{31: 0xbb}, host.Logs()[0].Topics[0])

	blockhash := func(n byte) []byte {
		code := []byte{0x60, n, 0x40, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
		_, res := runCode(host, code, nil, 100_000, false)
		require.Equal(t, Return, res.Status)
		return res.Output
	}
	assert.Equal(t, hash9.Bytes(), blockhash(9))
	assert.Equal(t, make([]byte, 32), blockhash(10), "current block is not served")
	assert.Equal(t, make([]byte, 32), blockhash(8), "unavailable hash reads as zero")
}

func TestSelfDestructRefundOnce(t *testing.T) {
	host := NewDummyHost(nil)
	host.SetBalance(testContract, uint256.NewInt(1))
	host.SetBalance(common.Address{0xbb}, uint256.NewInt(1))
	code := []byte{0x73}
	code = append(code, common.Address{0xbb}.Bytes()...)
	code = append(code, 0xff)

	_, first := runCode(host, code, nil, 100_000, false)
	require.Equal(t, SelfDestruct, first.Status)
	assert.Equal(t, int64(24000), first.GasRefund)
	assert.Equal(t, uint64(3+5000+2600), 100_000-first.GasLeft)

	_, second := runCode(host, code, nil, 100_000, false)
	require.Equal(t, SelfDestruct, second.Status)
	assert.Equal(t, int64(0), second.GasRefund)
	assert.Equal(t, uint64(3+5000), 100_000-second.GasLeft)
}

// recordingHost answers nested calls with a canned result.
type recordingHost struct {
	*DummyHost
	reqs   []*CallRequest
	result CallResult
	fail   error
}

func (h *recordingHost) Call(ctx context.Context, req *CallRequest) CallResult {
	h.reqs = append(h.reqs, req)
	return h.result
}

func (h *recordingHost) Balance(ctx context.Context, addr common.Address) (BalanceResult, error) {
	if h.fail != nil {
		return BalanceResult{}, h.fail
	}
	return h.DummyHost.Balance(ctx, addr)
}

// callCode is CALL(gas=0xffff, to=0xaa, value, in=0/0, out=0/32) then STOP.
func callCode(value byte) []byte {
	return []byte{
		0x60, 0x20, // retSize
		0x60, 0x00, // retOffset
		0x60, 0x00, // inSize
		0x60, 0x00, // inOffset
		0x60, value, // value
		0x60, 0xaa, // address
		0x61, 0xff, 0xff, // gas
		0xf1, // CALL
		0x00, // STOP
	}
}

func TestCallForwardingAndLeftover(t *testing.T) {
	host := &recordingHost{DummyHost: NewDummyHost(nil)}
	host.result = CallResult{Status: Return, GasLeft: 1000, GasRefund: 500, Output: []byte{1, 2, 3}}

	interp, res := runCode(host, callCode(0), nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	require.Len(t, host.reqs, 1)

	req := host.reqs[0]
	assert.Equal(t, KindCall, req.Kind)
	assert.Equal(t, common.Address{19: 0xaa}, req.Target)
	assert.Equal(t, testContract, req.Caller)
	assert.Equal(t, uint64(0xffff), req.GasLimit)

	// 21 for pushes, 3 for the return buffer, 100 warm + 2500 cold surcharge,
	// then 0xffff forwarded
	afterForward := uint64(100_000 - 21 - 3 - 2600 - 0xffff)
	assert.Equal(t, afterForward+1000, res.GasLeft)
	assert.Equal(t, int64(500), res.GasRefund)
	assert.Equal(t, uint64(1), interp.Stack().peek().Uint64())
	assert.Equal(t, []byte{1, 2, 3}, interp.Memory().GetCopy(0, 3))
	assert.Equal(t, []byte{1, 2, 3}, interp.ReturnData())
}

func TestCallRevertKeepsRefundOut(t *testing.T) {
	host := &recordingHost{DummyHost: NewDummyHost(nil)}
	host.result = CallResult{Status: Revert, GasLeft: 1000, GasRefund: 500, Output: []byte{9}}

	interp, res := runCode(host, callCode(0), nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	assert.Equal(t, int64(0), res.GasRefund)
	assert.Equal(t, uint64(0), interp.Stack().peek().Uint64())
	assert.Equal(t, []byte{9}, interp.Memory().GetCopy(0, 1))
}

func TestCallWithValueAddsStipend(t *testing.T) {
	host := &recordingHost{DummyHost: NewDummyHost(nil)}
	host.result = CallResult{Status: Stop}

	_, res := runCode(host, callCode(1), nil, 200_000, false)
	require.Equal(t, Stop, res.Status)
	require.Len(t, host.reqs, 1)
	assert.Equal(t, uint64(0xffff+2300), host.reqs[0].GasLimit)
	assert.True(t, host.reqs[0].TransfersValue())
	// value transfer 9000 and new account 25000 on top of the cold access
	assert.Equal(t, uint64(21+3+2600+9000+25000+0xffff), 200_000-res.GasLeft)
}

func TestStaticCallWithValueNeverReachesHost(t *testing.T) {
	host := &recordingHost{DummyHost: NewDummyHost(nil)}
	_, res := runCode(host, callCode(1), nil, 100_000, true)
	assert.Equal(t, StaticStateChange, res.Status)
	assert.Empty(t, host.reqs)
	assert.True(t, host.AddAddressToAccessList(common.Address{19: 0xaa}), "target must stay cold")
}

func TestFatalHostErrorHaltsFrame(t *testing.T) {
	boom := errors.New("backend down")
	host := &recordingHost{DummyHost: NewDummyHost(nil), fail: boom}
	// PUSH1 0xaa BALANCE STOP
	interp, res := runCode(host, []byte{0x60, 0xaa, 0x31, 0x00}, nil, 100_000, false)
	assert.Equal(t, FatalHostError, res.Status)
	assert.ErrorIs(t, interp.Err(), boom)
	assert.ErrorIs(t, res.Err, boom)
}

func TestNestedFatalPropagates(t *testing.T) {
	boom := errors.New("remote lookup failed")
	host := &recordingHost{DummyHost: NewDummyHost(nil)}
	host.result = CallResult{Status: FatalHostError, Err: boom}
	_, res := runCode(host, callCode(0), nil, 100_000, false)
	assert.Equal(t, FatalHostError, res.Status)
	assert.ErrorIs(t, res.Err, boom)
}

// limitHost halts any frame after a fixed number of steps.
type limitHost struct {
	*DummyHost
	limit uint64
}

func (h *limitHost) StepEnd(interp *Interpreter, status Status) Status {
	if status == Continue && interp.Steps() >= h.limit {
		interp.Halt(FatalHostError, errors.New("step limit"))
		return FatalHostError
	}
	return status
}

func TestStepEndOverride(t *testing.T) {
	host := &limitHost{DummyHost: NewDummyHost(nil), limit: 3}
	// JUMPDEST PUSH1 0 JUMP: loops forever
	interp, res := runCode(host, []byte{0x5b, 0x60, 0x00, 0x56}, nil, 1_000_000, false)
	assert.Equal(t, FatalHostError, res.Status)
	assert.Equal(t, uint64(3), interp.Steps())
	assert.EqualError(t, res.Err, "step limit")
}

func TestExtCodeHashAndSize(t *testing.T) {
	host := NewDummyHost(nil)
	other := common.Address{19: 0xcc}
	host.SetCode(other, []byte{0x60, 0x00})

	// PUSH1 0xcc EXTCODESIZE PUSH1 0xcc EXTCODEHASH STOP
	interp, res := runCode(host, []byte{0x60, 0xcc, 0x3b, 0x60, 0xcc, 0x3f, 0x00}, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	assert.Equal(t, uint64(3+2600+3+100), 100_000-res.GasLeft)
	data := interp.Stack().Data()
	assert.Equal(t, uint64(2), data[0].Uint64())
	assert.Equal(t, NewCode([]byte{0x60, 0x00}).Hash(), common.Hash(data[1].Bytes32()))
}

// createHost answers creates with a canned result.
type createHost struct {
	*DummyHost
	reqs   []*CreateRequest
	result CreateResult
}

func (h *createHost) Create(ctx context.Context, req *CreateRequest) CreateResult {
	h.reqs = append(h.reqs, req)
	return h.result
}

// create2Code is CREATE2(value=0, offset=0, size=64, salt=7) then STOP.
var create2Code = []byte{
	0x60, 0x07, // salt
	0x60, 0x40, // size
	0x60, 0x00, // offset
	0x60, 0x00, // value
	0xf5, // CREATE2
	0x00, // STOP
}

func TestCreate2ChargesAndForwards(t *testing.T) {
	created := common.Address{19: 0xcc}
	host := &createHost{DummyHost: NewDummyHost(nil)}
	host.result = CreateResult{Status: Return, Address: &created, GasLeft: 500, GasRefund: 40, Output: []byte{1}}

	interp, res := runCode(host, create2Code, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	require.Len(t, host.reqs, 1)

	req := host.reqs[0]
	assert.Equal(t, KindCreate2, req.Kind)
	assert.Equal(t, testContract, req.Caller)
	assert.Equal(t, uint64(7), req.Salt.Uint64())
	assert.Len(t, req.InitCode, 64)

	// 12 for pushes, 32000 base, 6 for two memory words, then per word
	// 2 init code and 6 hashing
	left := uint64(100_000 - 12 - 32_000 - 6 - 2*2 - 2*6)
	assert.Equal(t, left-left/64, req.GasLimit)
	assert.Equal(t, left/64+500, res.GasLeft)
	assert.Equal(t, int64(40), res.GasRefund)
	assert.Equal(t, addressToWord(created), interp.Stack().peek())
	assert.Empty(t, interp.ReturnData())
}

func TestCreateRevertKeepsReturnData(t *testing.T) {
	host := &createHost{DummyHost: NewDummyHost(nil)}
	host.result = CreateResult{Status: Revert, GasLeft: 700, GasRefund: 40, Output: []byte{0xab}}

	// CREATE(value=0, offset=0, size=0) STOP
	interp, res := runCode(host, []byte{0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0xf0, 0x00}, nil, 100_000, false)
	require.Equal(t, Stop, res.Status)
	require.Len(t, host.reqs, 1)
	assert.Equal(t, KindCreate, host.reqs[0].Kind)

	left := uint64(100_000 - 9 - 32_000)
	assert.Equal(t, left-left/64, host.reqs[0].GasLimit)
	assert.Equal(t, left/64+700, res.GasLeft)
	assert.Zero(t, res.GasRefund)
	assert.True(t, interp.Stack().peek().IsZero())
	assert.Equal(t, []byte{0xab}, interp.ReturnData())
}
