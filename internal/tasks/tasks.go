// Package tasks prebuilds every example application for every board it
// supports so that later requests are served from the caches.
package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Norgate-AV/riotam/internal/builder"
	"github.com/Norgate-AV/riotam/internal/catalog"
)

// Task is one (board, application) build
type Task struct {
	Board           string
	ApplicationID   int
	ApplicationName string
}

func (t Task) String() string {
	return fmt.Sprintf("%s for %s", t.ApplicationName, t.Board)
}

// BoardLister reports the boards an application directory can be built for
type BoardLister interface {
	SupportedBoards(ctx context.Context, appDir string) ([]string, error)
}

// ExampleBuilder builds a single example application
type ExampleBuilder interface {
	BuildExample(ctx context.Context, req builder.ExampleRequest) *builder.Result
}

// Collect lists a task for every catalog application and each board it
// supports. Applications whose boards cannot be listed are skipped.
func Collect(ctx context.Context, store catalog.Store, boards BoardLister, riotDir string, logger zerolog.Logger) ([]Task, error) {
	apps, err := store.Applications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applications: %w", err)
	}

	var tasks []Task
	for _, app := range apps {
		supported, err := boards.SupportedBoards(ctx, filepath.Join(riotDir, app.Path))
		if err != nil {
			logger.Warn().Err(err).Str("application", app.Name).Msg("Failed to list supported boards")
			continue
		}

		for _, board := range supported {
			tasks = append(tasks, Task{
				Board:           board,
				ApplicationID:   app.ID,
				ApplicationName: app.Name,
			})
		}
	}

	return tasks, nil
}
