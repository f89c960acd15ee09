package svmcmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync/atomic"
	"time"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shroudvm.org/shroud/hostsim"
	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/svm"
	"shroudvm.org/shroud/svmconfig"
	"shroudvm.org/shroud/svmimage"
)

var runCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run an image",
	},
	Flags: []star.IParam{ConfigParam, jitParam, callsParam, localsParam},
	Pos:   []star.IParam{fileParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		f := fileParam.Load(c)
		defer f.Close()
		img, err := readImage(f)
		if err != nil {
			return err
		}
		res, err := runImage(ctx, cfg, img, runArgs{
			Locals: localsParam.LoadAll(c),
			Calls:  callsParam.Load(c),
			JIT:    jitParam.Load(c),
			Out:    c.StdOut,
		})
		if err != nil {
			return err
		}
		printResult(c.StdOut, res)
		return nil
	},
}

var benchCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run an image on several machines at once",
	},
	Flags: []star.IParam{ConfigParam, jitParam, callsParam, workersParam, localsParam},
	Pos:   []star.IParam{fileParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		f := fileParam.Load(c)
		defer f.Close()
		img, err := readImage(f)
		if err != nil {
			return err
		}
		res, err := bench(ctx, cfg, img, workersParam.Load(c), runArgs{
			Locals: localsParam.LoadAll(c),
			Calls:  callsParam.Load(c),
			JIT:    jitParam.Load(c),
			Out:    io.Discard,
		})
		if err != nil {
			return err
		}
		c.Printf("workers: %d calls: %d elapsed: %v (%v/call)\n", res.Workers, res.Calls, res.Elapsed, res.PerCall())
		return nil
	},
}

// runArgs are the per-run settings. Out receives the output of PRINT and the host console.
type runArgs struct {
	Locals []svm.Word
	Calls  int
	JIT    bool
	Out    io.Writer
}

type runResult struct {
	Result    svm.Word
	Halt      svm.Halt
	Exception string
	Stats     svm.Stats
	JIT       svm.JITStats
	Cache     svm.CacheStats
	Trace     []svm.TraceEntry
}

// runImage runs img args.Calls times on a new machine and reports the last call.
func runImage(ctx context.Context, cfg *svmconfig.Config, img *svmimage.Image, args runArgs) (*runResult, error) {
	host := hostsim.New()
	host.Out = args.Out
	opts := cfg.MachineOptions()
	opts.Output = args.Out
	m := svm.New(host, opts)
	prog, err := loadProgram(m, img)
	if err != nil {
		return nil, err
	}
	locals := make([]svm.Word, max(img.Locals, len(args.Locals)))
	var res runResult
	for i := 0; i < max(args.Calls, 1); i++ {
		copy(locals, args.Locals)
		clear(locals[len(args.Locals):])
		if args.JIT {
			res.Result = m.ExecuteJIT(ctx, prog, locals, img.Seed, &img.Tables)
		} else {
			res.Result = m.Execute(ctx, prog, locals, img.Seed, &img.Tables)
		}
		if host.ExceptionCheck() {
			exc := host.PendingException()
			res.Exception = host.ClassOf(exc).Name
			if msg := host.Message(exc); msg != "" {
				res.Exception += ": " + msg
			}
			host.ExceptionClear()
			break
		}
	}
	res.Halt = m.LastHalt()
	res.Stats = m.Stats()
	res.JIT = m.JITStats()
	res.Cache = m.CacheStats()
	res.Trace = m.Trace()
	logctx.Debug(ctx, "run finished", zap.Stringer("halt", res.Halt), zap.Uint64("calls", res.Stats.Calls))
	return &res, nil
}

// loadProgram returns the program of img encoded for m.
func loadProgram(m *svm.Machine, img *svmimage.Image) ([]scramble.Instruction, error) {
	if img.Encoded {
		if err := img.Check(m.Scramble()); err != nil {
			return nil, err
		}
		return img.Program, nil
	}
	prog := slices.Clone(img.Program)
	if err := m.EncodeProgram(prog, img.Seed); err != nil {
		return nil, err
	}
	return prog, nil
}

func printResult(w io.Writer, res *runResult) {
	fmt.Fprintf(w, "RESULT: %d\n", res.Result)
	fmt.Fprintf(w, "HALT: %v\n", res.Halt)
	if res.Exception != "" {
		fmt.Fprintf(w, "EXCEPTION: %s\n", res.Exception)
	}
	fmt.Fprintf(w, "CALLS: %d (jit %d)\n", res.Stats.Calls, res.Stats.JITCalls)
	if res.JIT.Compiles > 0 || res.JIT.Rejected > 0 {
		fmt.Fprintf(w, "JIT: compiles=%d hits=%d rejected=%d\n", res.JIT.Compiles, res.JIT.Hits, res.JIT.Rejected)
	}
	if res.Cache.ClassLookups > 0 {
		fmt.Fprintf(w, "CLASSES: lookups=%d hits=%d misses=%d\n", res.Cache.ClassLookups, res.Cache.ClassHits, res.Cache.ClassMisses)
	}
	for _, te := range res.Trace {
		fmt.Fprintf(w, "  %v\n", te)
	}
}

type benchResult struct {
	Workers int
	Calls   uint64
	Elapsed time.Duration
}

func (r benchResult) PerCall() time.Duration {
	if r.Calls == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Calls)
}

// bench runs img on one machine per worker.
// Machines are not shared, so each worker gets its own host and encoding context.
func bench(ctx context.Context, cfg *svmconfig.Config, img *svmimage.Image, workers int, args runArgs) (*benchResult, error) {
	var calls atomic.Uint64
	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			res, err := runImage(ctx, cfg, img, args)
			if err != nil {
				return err
			}
			if res.Exception != "" {
				return fmt.Errorf("worker %d: %s", i, res.Exception)
			}
			calls.Add(res.Stats.Calls)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &benchResult{
		Workers: workers,
		Calls:   calls.Load(),
		Elapsed: time.Since(start),
	}, nil
}
