package export

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ScriptOptions is the rendering policy handed to the renderer. The exporter
// always uses DefaultScriptOptions; the fields mirror the knobs the scripting
// collaborator understands.
type ScriptOptions struct {
	AppendToFile        bool
	AllowSystemObjects  bool
	ClusteredIndexes    bool
	DriAll              bool
	NonClusteredIndexes bool
	ScriptDrops         bool
	IncludeHeaders      bool
	ToFileOnly          bool
	WithDependencies    bool
}

// DefaultScriptOptions is the fixed policy for exported scripts: fresh file
// per object, no system objects, clustered and nonclustered indexes plus all
// declarative referential integrity, no drop statements, descriptive header,
// no dependency walking.
func DefaultScriptOptions() ScriptOptions {
	return ScriptOptions{
		ClusteredIndexes:    true,
		DriAll:              true,
		NonClusteredIndexes: true,
		IncludeHeaders:      true,
		ToFileOnly:          true,
	}
}

// ScriptWriter drives the renderer for one object at a time and lands the
// result at the planned path, create-or-overwrite.
type ScriptWriter struct {
	renderer Renderer
	opts     ScriptOptions
	log      zerolog.Logger
}

func NewScriptWriter(renderer Renderer, log zerolog.Logger) *ScriptWriter {
	return &ScriptWriter{renderer: renderer, opts: DefaultScriptOptions(), log: log}
}

// Write renders obj and writes exactly one file at path. Two distinct objects
// can sanitize to the same name within one directory; the later object in
// collection order overwrites the earlier file. The overwrite is logged but
// not treated as a failure.
func (w *ScriptWriter) Write(ctx context.Context, obj Object, path string) error {
	if _, err := os.Stat(path); err == nil {
		w.log.Warn().Str("object", obj.Name).Str("path", path).Msg("destination file exists, overwriting")
	}
	text, err := w.renderer.Render(ctx, obj, w.opts)
	if err != nil {
		return fmt.Errorf("render %s %s: %w", obj.Tag, obj.Name, err)
	}
	if err := os.WriteFile(path, []byte(text), 0o640); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}
