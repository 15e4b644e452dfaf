// evmrun executes one transaction against a prestate and prints a JSON
// summary of the outcome.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colorfulnotion/evmhost/chainspecs"
	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/host"
	log "github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/storage"
	"github.com/colorfulnotion/evmhost/tracer"
	"github.com/colorfulnotion/evmhost/vmerrors"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	Version = "dev"
	Commit  = "none"
)

type runFlags struct {
	code     string
	codeFile string
	input    string
	gas      uint64
	value    string
	from     string
	to       string
	create   bool
	spec     string
	dataDir  string
	rpc      string
	block    uint64
	trace    bool
	callTree bool
	otel     string
	logLevel string
	debug    string
}

// summary is the JSON body printed after a run.
type summary struct {
	Status          string                  `json:"status"`
	GasUsed         uint64                  `json:"gasUsed"`
	GasRefund       uint64                  `json:"gasRefund"`
	Output          hexutil.Bytes           `json:"output"`
	ContractAddress *ethereumCommon.Address `json:"contractAddress,omitempty"`
	Logs            []*types.Log            `json:"logs"`
	Steps           uint64                  `json:"steps"`
	Error           string                  `json:"error,omitempty"`
	ErrorCode       string                  `json:"errorCode,omitempty"`
}

func main() {
	var rootCmd = &cobra.Command{
		Use:     "evmrun",
		Short:   "Run EVM bytecode against a prestate",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var f runFlags
	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute one transaction and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.InitLogger(f.logLevel)
			log.EnableModules(f.debug)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, &f)
		},
	}
	defaultFrom, _ := common.GetEVMDevAccount(0)
	runCmd.Flags().StringVar(&f.code, "code", "", "Hex bytecode to run (installed at --to, or used as init code with --create)")
	runCmd.Flags().StringVar(&f.codeFile, "codefile", "", "File holding hex bytecode")
	runCmd.Flags().StringVar(&f.input, "input", "", "Hex call data")
	runCmd.Flags().Uint64Var(&f.gas, "gas", 10_000_000, "Transaction gas limit")
	runCmd.Flags().StringVar(&f.value, "value", "0", "Value sent with the transaction (decimal or 0x hex)")
	runCmd.Flags().StringVar(&f.from, "from", defaultFrom.Hex(), "Transaction origin")
	runCmd.Flags().StringVar(&f.to, "to", "0x000000000000000000000000000000000000c0de", "Transaction recipient")
	runCmd.Flags().BoolVar(&f.create, "create", false, "Deploy the code instead of calling it")
	runCmd.Flags().StringVar(&f.spec, "spec", "dev", "Chain spec name or JSON file")
	runCmd.Flags().StringVar(&f.dataDir, "datadir", "", "LevelDB directory to run against and commit to")
	runCmd.Flags().StringVar(&f.rpc, "rpc", "", "JSON-RPC endpoint to fork state from (read-only)")
	runCmd.Flags().Uint64Var(&f.block, "block", 0, "Block to fork from with --rpc (0 = latest)")
	runCmd.Flags().BoolVar(&f.trace, "trace", false, "Stream struct logs to stderr")
	runCmd.Flags().BoolVar(&f.callTree, "calltree", false, "Print the call tree to stderr")
	runCmd.Flags().StringVar(&f.otel, "otel", "", "OTLP/HTTP endpoint for frame spans (e.g. localhost:4318)")
	runCmd.Flags().StringVar(&f.logLevel, "loglevel", "info", "Log level")
	runCmd.Flags().StringVar(&f.debug, "debug", "", "Debug modules to enable (comma separated, or all)")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openState picks the backend and the writer results are committed to. A
// remote fork has no writer.
func openState(ctx context.Context, f *runFlags, spec *chainspecs.ChainSpec) (statedb.Backend, statedb.Writer, func(), error) {
	switch {
	case f.rpc != "":
		rb, err := statedb.DialRemote(ctx, f.rpc, f.block)
		if err != nil {
			return nil, nil, nil, err
		}
		return rb, nil, rb.Close, nil
	case f.dataDir != "":
		lb, err := storage.OpenLevelBackend(f.dataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		accounts, _, _, err := lb.Stats()
		if err != nil {
			lb.Close()
			return nil, nil, nil, err
		}
		if accounts == 0 {
			log.Info(log.StorageMonitoring, "seeding datadir from spec", "spec", spec.ID, "dir", f.dataDir)
			if err := spec.Apply(lb); err != nil {
				lb.Close()
				return nil, nil, nil, err
			}
		}
		return lb, lb, func() { lb.Close() }, nil
	default:
		mb := statedb.NewMemoryBackend()
		if err := spec.Apply(mb); err != nil {
			return nil, nil, nil, err
		}
		return mb, mb, func() {}, nil
	}
}

// installCode puts code at addr before the transaction runs.
func installCode(ctx context.Context, backend statedb.Backend, w statedb.Writer, addr ethereumCommon.Address, code []byte) error {
	if w == nil {
		return fmt.Errorf("install code at %s: %w", addr, vmerrors.ErrReadOnlyBackend)
	}
	acct, err := backend.Account(ctx, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = statedb.NewAccount()
	}
	acct.CodeHash = common.Keccak256(code)
	if err := w.WriteCode(acct.CodeHash, code); err != nil {
		return err
	}
	return w.WriteAccount(addr, acct)
}

func loadCode(f *runFlags) ([]byte, error) {
	if f.codeFile != "" {
		return common.ReadHexFile(f.codeFile)
	}
	return common.FromHex(f.code), nil
}

func run(ctx context.Context, f *runFlags) error {
	spec, err := chainspecs.ReadSpec(f.spec)
	if err != nil {
		return fmt.Errorf("read spec %s: %w", f.spec, err)
	}
	env, err := spec.Environment()
	if err != nil {
		return err
	}
	backend, writer, closeFn, err := openState(ctx, f, spec)
	if err != nil {
		return err
	}
	defer closeFn()

	code, err := loadCode(f)
	if err != nil {
		return err
	}
	input := common.FromHex(f.input)
	value, err := uint256.FromDecimal(f.value)
	if err != nil {
		if value, err = uint256.FromHex(f.value); err != nil {
			return fmt.Errorf("value %q: %w", f.value, err)
		}
	}

	env.Tx.Origin = ethereumCommon.HexToAddress(f.from)
	env.Tx.GasLimit = f.gas
	env.Tx.GasPrice = env.Block.BaseFee
	env.Tx.Value = value
	if f.create {
		env.Tx.Data = append(code, input...)
	} else {
		to := ethereumCommon.HexToAddress(f.to)
		env.Tx.To = &to
		env.Tx.Data = input
		if len(code) > 0 {
			if err := installCode(ctx, backend, writer, to, code); err != nil {
				return err
			}
		}
	}

	h := host.New(env, statedb.New(backend))
	var tracers []tracer.Tracer
	if f.trace {
		// stream to stderr, keep a single record in memory
		tracers = append(tracers, tracer.NewStructLogger(os.Stderr, 1))
	}
	var calls *tracer.CallTracer
	if f.callTree {
		calls = tracer.NewCallTracer()
		tracers = append(tracers, calls)
	}
	if f.otel != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(f.otel), otlptracehttp.WithInsecure())
		if err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				log.Warn(log.TracerMonitoring, "otel shutdown", "err", err)
			}
		}()
		tracers = append(tracers, tracer.NewOtelTracer(ctx, provider.Tracer("evmrun")))
	}
	if len(tracers) > 0 {
		h.SetTracer(tracer.Multi(tracers...))
	}

	start := time.Now()
	res, execErr := h.Execute(ctx, writer)
	if calls != nil {
		fmt.Fprintln(os.Stderr, calls.String())
	}

	out := summary{Logs: []*types.Log{}}
	if execErr != nil {
		out.Status = "aborted"
		out.Error = execErr.Error()
		out.ErrorCode = vmerrors.GetErrorCodeWithName(execErr)
	} else {
		out.Status = res.Status.String()
		out.GasUsed = res.GasUsed
		out.GasRefund = res.GasRefund
		out.Output = res.Output
		out.ContractAddress = res.ContractAddress
		out.Steps = res.Steps
		if res.Logs != nil {
			out.Logs = res.Logs
		}
	}
	if err := log.Structured(os.Stdout, "execution", "evmrun", out, "elapsed", time.Since(start)); err != nil {
		return err
	}
	return execErr
}
