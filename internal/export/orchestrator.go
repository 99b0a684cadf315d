package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// timestampLayout anchors a whole run to one directory; the value is computed
// once per export call, never per object.
const timestampLayout = "20060102_150405"

// Options configures one export run.
type Options struct {
	Instance     string
	OutputRoot   string
	UseTimestamp bool

	// Now is the clock used for the run timestamp. Nil means time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Exporter runs the export pipeline: collect, plan, materialize, serialize.
// Databases and objects are processed strictly one at a time; the catalog and
// renderer handles are bound to a single connection.
type Exporter struct {
	src    Source
	writer *ScriptWriter
	log    zerolog.Logger
}

func New(src Source, renderer Renderer, log zerolog.Logger) *Exporter {
	return &Exporter{src: src, writer: NewScriptWriter(renderer, log), log: log}
}

// ExportDatabaseObjects exports schema objects of the selected databases. The
// selector is resolved once: the "ALL" sentinel asks the catalog for every
// user database, an explicit list is used verbatim (a nonexistent name simply
// enumerates to nothing). Failures are recovered at the smallest scope that
// can still make progress; a database-level failure marks that database and
// the run moves on.
func (e *Exporter) ExportDatabaseObjects(ctx context.Context, sel DatabaseSelector, flags DatabaseFlags, opts Options) (*RunSummary, error) {
	start := opts.now()
	summary := &RunSummary{
		Instance:   opts.Instance,
		Scope:      ScopeDatabase,
		OutputRoot: opts.OutputRoot,
		StartedAt:  start,
	}
	defer func() { summary.Duration = time.Since(start).String() }()

	if err := os.MkdirAll(opts.OutputRoot, 0o750); err != nil {
		return nil, fmt.Errorf("prepare output root: %w", err)
	}
	timestamp := ""
	if opts.UseTimestamp {
		timestamp = start.Format(timestampLayout)
		summary.Timestamp = timestamp
	}

	targets := sel.Names
	if sel.All {
		var err error
		targets, err = e.src.UserDatabases(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve databases: %w", err)
		}
	}

	dirs := newDirMaker()
	for _, database := range targets {
		result := DatabaseResult{Name: database}
		objects, failures := CollectDatabase(ctx, e.src, database, flags)
		summary.CategoryFailures = append(summary.CategoryFailures, failures...)
		for _, failure := range failures {
			e.log.Warn().Str("database", failure.Database).Str("category", string(failure.Category)).Str("error", failure.Error).Msg("category enumeration failed")
		}

		result.Discovered = len(objects)
		if err := e.writeObjects(ctx, objects, timestamp, opts, dirs, summary, &result); err != nil {
			result.Failed = true
			result.Error = err.Error()
			e.log.Error().Str("database", database).Err(err).Msg("database export failed")
		}
		summary.Discovered += result.Discovered
		summary.Databases = append(summary.Databases, result)
	}
	return summary, nil
}

// ExportServerObjects exports server-level objects: the server is the single
// target, so a failure inside the object loop ends the run and is reported in
// the summary rather than escalated. Only a failure before the loop begins
// (unreachable catalog, unusable output root) returns an error.
func (e *Exporter) ExportServerObjects(ctx context.Context, flags ServerFlags, opts Options) (*RunSummary, error) {
	start := opts.now()
	summary := &RunSummary{
		Instance:   opts.Instance,
		Scope:      ScopeServer,
		OutputRoot: opts.OutputRoot,
		StartedAt:  start,
	}
	defer func() { summary.Duration = time.Since(start).String() }()

	if err := os.MkdirAll(opts.OutputRoot, 0o750); err != nil {
		return nil, fmt.Errorf("prepare output root: %w", err)
	}
	timestamp := ""
	if opts.UseTimestamp {
		timestamp = start.Format(timestampLayout)
		summary.Timestamp = timestamp
	}

	objects, failures := CollectServer(ctx, e.src, flags)
	summary.CategoryFailures = append(summary.CategoryFailures, failures...)
	for _, failure := range failures {
		e.log.Warn().Str("category", string(failure.Category)).Str("error", failure.Error).Msg("category enumeration failed")
	}
	summary.Discovered = len(objects)

	dirs := newDirMaker()
	if err := e.writeObjects(ctx, objects, timestamp, opts, dirs, summary, nil); err != nil {
		summary.Error = err.Error()
		e.log.Error().Err(err).Msg("server export stopped")
	}
	return summary, nil
}

// writeObjects runs the plan/materialize/serialize stages over a collected
// batch. Per-object failures are recorded and skipped; only a path failure
// escalates, since nothing under that directory can be written.
func (e *Exporter) writeObjects(ctx context.Context, objects []Object, timestamp string, opts Options, dirs *dirMaker, summary *RunSummary, result *DatabaseResult) error {
	for _, obj := range objects {
		plan := PlanObject(opts.OutputRoot, opts.Instance, timestamp, obj.Database, obj.Tag, Sanitize(obj.Name))
		if err := dirs.ensure(plan.Dir); err != nil {
			return err
		}
		if err := e.writer.Write(ctx, obj, plan.FullPath); err != nil {
			summary.Skipped++
			if result != nil {
				result.Skipped++
			}
			summary.ObjectFailures = append(summary.ObjectFailures, ObjectFailure{
				Database: obj.Database,
				Tag:      obj.Tag,
				Name:     obj.Name,
				Error:    err.Error(),
			})
			e.log.Warn().Str("object", obj.Name).Str("type", string(obj.Tag)).Err(err).Msg("object skipped")
			continue
		}
		summary.Written++
		if result != nil {
			result.Written++
		}
	}
	return nil
}
