package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Step is one migration touched (or inspected) by a command.
type Step struct {
	Version   int64
	Path      string
	Direction string
	State     string
	Duration  time.Duration
}

func (s Step) String() string {
	if s.State != "" {
		return fmt.Sprintf("%d %s %s", s.Version, s.State, s.Path)
	}
	return fmt.Sprintf("%d %s %s (%s)", s.Version, s.Direction, s.Path, s.Duration.Round(time.Millisecond))
}

func provider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("migrations dir is required")
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("open migrations in %s: %w", dir, err)
	}
	return p, nil
}

// Run executes up, down or status against db.
func Run(ctx context.Context, db *sql.DB, dir, command string) ([]Step, error) {
	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}
	switch command {
	case "up":
		results, err := p.Up(ctx)
		return fromResults(results), wrapCommand(command, err)
	case "down":
		result, err := p.Down(ctx)
		if result == nil {
			return nil, wrapCommand(command, err)
		}
		return fromResults([]*goose.MigrationResult{result}), wrapCommand(command, err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, wrapCommand(command, err)
		}
		steps := make([]Step, 0, len(statuses))
		for _, st := range statuses {
			steps = append(steps, Step{Version: st.Source.Version, Path: st.Source.Path, State: string(st.State)})
		}
		return steps, nil
	default:
		return nil, fmt.Errorf("unsupported migrate command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until target (YYYYMMDDHHMMSS)
// is the current version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string) ([]Step, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = p.UpTo(ctx, version)
	default:
		results, err = p.DownTo(ctx, version)
	}
	return fromResults(results), wrapCommand(fmt.Sprintf("migrate %d -> %d", current, version), err)
}

func fromResults(results []*goose.MigrationResult) []Step {
	steps := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return steps
}

func wrapCommand(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
