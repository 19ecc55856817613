package tasks

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/Norgate-AV/riotam/internal/builder"
)

// Runner works through a task list with a fixed number of workers
type Runner struct {
	Builder ExampleBuilder
	// Worker count, zero means one per CPU
	Workers int
	Caching bool
	// Progress lines are written here
	Out    io.Writer
	Logger zerolog.Logger

	outMu sync.Mutex
}

// Run builds every task with prefetching and returns the statistic.
// Tasks not yet started when ctx is done are skipped.
func (r *Runner) Run(ctx context.Context, tasks []Task) *Statistic {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	stat := NewStatistic()
	stat.Start()

	p := pool.New().WithMaxGoroutines(workers)
	for _, task := range tasks {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			r.run(ctx, task, stat)
		})
	}
	p.Wait()

	stat.Stop()

	return stat
}

func (r *Runner) run(ctx context.Context, task Task, stat *Statistic) {
	start := time.Now()

	res := r.Builder.BuildExample(ctx, builder.ExampleRequest{
		Board:         task.Board,
		ApplicationID: task.ApplicationID,
		Caching:       r.Caching,
		Prefetching:   true,
	})

	elapsed := time.Since(start)
	failed := !res.Success
	stat.AddCompletedTask(elapsed, failed)

	r.Logger.Debug().
		Str("application", task.ApplicationName).
		Str("board", task.Board).
		Bool("success", res.Success).
		Dur("duration", elapsed).
		Msg("Task finished")

	if r.Out == nil {
		return
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()

	if failed {
		fmt.Fprintf(r.Out, "[FAILED]: Build of %s\n", task)
		if res.CmdOutput != "" {
			fmt.Fprintln(r.Out, res.CmdOutput)
		}
		return
	}

	fmt.Fprintf(r.Out, "[DONE]:   Build of %s\n", task)
}
