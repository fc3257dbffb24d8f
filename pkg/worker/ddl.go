package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlshell/dbdump/pkg/schemadump"
	"github.com/sqlshell/dbdump/pkg/task"
)

func (w *Worker) executeSchemaDDL(ctx context.Context, t task.Task) error {
	ddl, _, err := w.opts.SchemaDumper.SchemaDDL(ctx, t.Schema)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(ddl)

	si := w.opts.Cache.Schemas[t.Schema]
	if w.opts.DumpRoutines && si != nil {
		for _, name := range si.Procedures {
			routineDDL, err := w.opts.SchemaDumper.RoutineDDL(ctx, t.Schema, name, "PROCEDURE")
			if err != nil {
				return err
			}
			b.WriteString(routineDDL)
		}
		for _, name := range si.Functions {
			routineDDL, err := w.opts.SchemaDumper.RoutineDDL(ctx, t.Schema, name, "FUNCTION")
			if err != nil {
				return err
			}
			b.WriteString(routineDDL)
		}
	}
	if w.opts.DumpEvents && si != nil {
		for _, name := range si.Events {
			eventDDL, err := w.opts.SchemaDumper.EventDDL(ctx, t.Schema, name)
			if err != nil {
				return err
			}
			b.WriteString(eventDDL)
		}
	}

	return w.writeWhole(ctx, fmt.Sprintf("%s.sql", t.Schema), b.String())
}

func (w *Worker) executeTableDDL(ctx context.Context, t task.Task) error {
	ddl, issues, err := w.opts.SchemaDumper.TableDDL(ctx, t.Schema, t.Table)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		if issue.Status == schemadump.NeedsCompatibilityOption {
			return fmt.Errorf("worker: %s.%s: %s (needs a compatibility option)", t.Schema, t.Table, issue.Description)
		}
	}
	if err := w.writeWhole(ctx, fmt.Sprintf("%s@%s.sql", t.Schema, t.Table), ddl); err != nil {
		return err
	}

	if w.opts.DumpTriggers {
		if si := w.opts.Cache.Schemas[t.Schema]; si != nil {
			triggers := si.TableTriggers[t.Table]
			if len(triggers) > 0 {
				var b strings.Builder
				for _, trigger := range triggers {
					triggerDDL, err := w.opts.SchemaDumper.TriggerDDL(ctx, t.Schema, trigger)
					if err != nil {
						return err
					}
					b.WriteString(triggerDDL)
				}
				if err := w.writeWhole(ctx, fmt.Sprintf("%s@%s@.triggers.sql", t.Schema, t.Table), b.String()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Worker) executeViewDDL(ctx context.Context, t task.Task) error {
	ddl, _, err := w.opts.SchemaDumper.ViewDDL(ctx, t.Schema, t.View)
	if err != nil {
		return err
	}
	return w.writeWhole(ctx, fmt.Sprintf("%s@%s.sql", t.Schema, t.View), ddl)
}

// writeWhole writes a complete in-memory buffer (DDL text) to its
// canonical per-object file in one shot, through the shared Sink.
func (w *Worker) writeWhole(ctx context.Context, key, body string) error {
	wc, err := w.opts.Sink.Create(ctx, key)
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(body)); err != nil {
		_ = wc.Close()
		_ = w.opts.Sink.Abandon(ctx, key)
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return w.opts.Sink.Finalize(ctx, key)
}
