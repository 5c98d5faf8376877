package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Record kinds of a discovery log.
const (
	RecordParsed      = "parsed"
	RecordTransformed = "transformed"
	RecordBundle      = "bundle"
	RecordError       = "error"
)

// Record is one line of a discovery log (NDJSON).
type Record struct {
	Event          string   `json:"event"`
	ID             string   `json:"id,omitempty"`
	Imports        []string `json:"imports,omitempty"`
	DynamicImports []string `json:"dynamic_imports,omitempty"`
	Files          []string `json:"files,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// Result summarizes a replayed build.
type Result struct {
	Modules     int
	Composites  int
	Assignments map[string]string
	BuildErr    error // reported by an "error" record
}

// Replay drives b from a discovery log, ends the build and, when the log
// carried bundle records, writes the manifest. Records are applied in order.
func Replay(ctx context.Context, r io.Reader, b *Build) (Result, error) {
	var (
		res      Result
		files    []string
		buildErr error
		line     int
	)
	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("crawl: record %d: %w", line, err)
		}

		switch rec.Event {
		case RecordParsed:
			err = b.OnModuleDiscovered(ModuleInfo{ID: rec.ID, Imports: rec.Imports, DynamicImports: rec.DynamicImports})
		case RecordTransformed:
			err = b.OnModuleTransformed(rec.ID)
		case RecordBundle:
			files = append(files, rec.Files...)
		case RecordError:
			if buildErr == nil {
				buildErr = errors.New(rec.Message)
			}
		default:
			err = fmt.Errorf("unknown event %q", rec.Event)
		}
		if err != nil {
			return res, fmt.Errorf("crawl: record %d: %w", line, err)
		}
	}

	if err := b.End(ctx, buildErr); err != nil {
		return res, err
	}
	res.Assignments = b.Assignments()
	res.Modules = len(res.Assignments)
	res.Composites = b.Composites().Len()
	res.BuildErr = buildErr

	if len(files) > 0 {
		if err := b.EmitBundle(ctx, files); err != nil {
			return res, err
		}
	}
	return res, nil
}
