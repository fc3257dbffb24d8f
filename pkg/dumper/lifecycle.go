package dumper

import (
	"context"
	"fmt"
	"time"

	"github.com/sqlshell/dbdump/pkg/cache"
	"github.com/sqlshell/dbdump/pkg/dbsession"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/manifest"
	"github.com/sqlshell/dbdump/pkg/queue"
	"github.com/sqlshell/dbdump/pkg/ratelimit"
	"github.com/sqlshell/dbdump/pkg/schemadump"
	"github.com/sqlshell/dbdump/pkg/sink"
	"github.com/sqlshell/dbdump/pkg/task"
)

func (c *Coordinator) connect(ctx context.Context) error {
	session, err := dbsession.Connect(ctx, dbsession.Config{
		Host: c.cfg.Source.Host, Port: c.cfg.Source.Port,
		Username: c.cfg.Source.Username, Password: c.cfg.Source.Password,
		Secure: c.cfg.Source.Secure, Timeout: 30 * time.Second,
	}, c.cfg.Source.UTCTimeZone)
	if err != nil {
		return err
	}
	c.primary = session

	s, err := sink.New(ctx, c.cfg.Output.URL)
	if err != nil {
		_ = session.Close()
		return err
	}
	c.sink = s

	if c.cfg.Dump.RateLimitBytesPerSecond > 0 {
		c.limiter = ratelimit.New(c.cfg.Dump.RateLimitBytesPerSecond, int(c.cfg.Dump.RateLimitBytesPerSecond))
	} else {
		c.limiter = ratelimit.Unlimited()
	}

	compat := schemadump.CompatibilityOptions{
		StripDefiners:       c.cfg.Dump.StripDefiners,
		StripStorageClauses: c.cfg.Dump.StripStorageClauses,
		UpgradeTableOptions: c.cfg.Dump.UpgradeTableOptions,
	}
	if compat.StripDefiners {
		c.compatibilityOps = append(c.compatibilityOps, "strip_definers")
	}
	if compat.StripStorageClauses {
		c.compatibilityOps = append(c.compatibilityOps, "strip_storage_clauses")
	}
	if compat.UpgradeTableOptions {
		c.compatibilityOps = append(c.compatibilityOps, "upgrade_table_options")
	}
	c.schema = schemadump.New(c.primary, compat, c.cfg.Dump.CompatibilityPassEnabled)

	c.queue = queue.New(c.cfg.Dump.TaskQueueCapacityPerLane)
	c.consistent = c.cfg.Dump.ConsistentSnapshot

	mode, err := dumpwriter.ParseEncodingMode(c.cfg.Output.EncodingUnsafeFormat)
	if err != nil {
		return err
	}
	c.encodingMode = mode
	return nil
}

// lock acquires the global read lock so every table's metadata and
// starting snapshot point are consistent with one another, falling
// back to per-table LOCK TABLES if FLUSH TABLES WITH READ LOCK is
// unavailable (a reduced-privilege source).
func (c *Coordinator) lock(ctx context.Context) error {
	if err := c.primary.GlobalLock(ctx); err != nil {
		c.log.WithError(err).Warn("FLUSH TABLES WITH READ LOCK failed, falling back to per-table locks")
		minimal, err := cache.BuildMinimal(ctx, c.primary, c.filter)
		if err != nil {
			return err
		}
		if err := c.primary.TableLocks(ctx, minimal.TableNames(), 100); err != nil {
			return err
		}
		c.cache = minimal
		c.gtidInconsistent = true
	}
	c.state = Locked
	return nil
}

// snapshot starts the primary session's own consistent-snapshot
// transaction (establishing the binlog coordinate every Worker's
// snapshot will match), opens every Worker's session and starts its
// own snapshot transaction while the lock from lock() is still held,
// best-effort-acquires LOCK INSTANCE FOR BACKUP for DDL stability
// during the unlocked cache build, and only then releases the lock.
// Every REPEATABLE READ transaction a Worker holds was started before
// Unlock, so it observes the exact same point as the primary.
func (c *Coordinator) snapshot(ctx context.Context) error {
	if c.consistent {
		if err := c.primary.BeginConsistentSnapshot(ctx); err != nil {
			return err
		}
	}
	if err := c.openWorkerSessions(ctx); err != nil {
		return err
	}
	if err := c.primary.BackupLock(ctx); err != nil {
		c.log.WithError(err).Warn("LOCK INSTANCE FOR BACKUP unavailable, DDL may change while the cache builds unlocked")
	} else {
		c.backupLocked = true
	}
	if err := c.primary.Unlock(ctx); err != nil {
		return err
	}
	c.state = Snapshotted
	return nil
}

func (c *Coordinator) buildCache(ctx context.Context) error {
	if c.cache == nil {
		minimal, err := cache.BuildMinimal(ctx, c.primary, c.filter)
		if err != nil {
			return err
		}
		c.cache = minimal
	}
	if err := cache.BuildFull(ctx, c.primary, c.filter, c.cache); err != nil {
		return err
	}
	c.state = Cached
	return nil
}

// validate runs every precondition a Worker would otherwise discover
// mid-dump: that the filter matched something, that the source user
// holds the privileges the configured optional features need, and that
// the compatibility pass (if enabled) has no unresolved
// NeedsCompatibilityOption issue for any table's CREATE TABLE text.
func (c *Coordinator) validate(ctx context.Context) error {
	if len(c.cache.Schemas) == 0 {
		return fmt.Errorf("no schemas matched the configured filter")
	}

	if c.cfg.Dump.DumpEvents && cacheHasEvents(c.cache) {
		ok, err := c.primary.HasPrivilege(ctx, "EVENT")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dumper: dump_events is enabled but the source user lacks the EVENT privilege")
		}
	}
	if c.cfg.Dump.DumpTriggers && cacheHasTriggers(c.cache) {
		ok, err := c.primary.HasPrivilege(ctx, "TRIGGER")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dumper: dump_triggers is enabled but the source user lacks the TRIGGER privilege")
		}
	}

	if c.cfg.Dump.CompatibilityPassEnabled {
		if err := c.checkCompatibility(ctx); err != nil {
			return err
		}
	}

	c.state = Validated
	return nil
}

func cacheHasEvents(cc *cache.Cache) bool {
	for _, si := range cc.Schemas {
		if len(si.Events) > 0 {
			return true
		}
	}
	return false
}

func cacheHasTriggers(cc *cache.Cache) bool {
	for _, si := range cc.Schemas {
		if len(si.TableTriggers) > 0 {
			return true
		}
	}
	return false
}

// checkCompatibility fetches every table's CREATE TABLE text and runs
// the compatibility pass against it before DUMPING begins, aborting
// with an actionable error the moment one table needs a compatibility
// option the operator hasn't turned on.
func (c *Coordinator) checkCompatibility(ctx context.Context) error {
	for schemaName, si := range c.cache.Schemas {
		for tableName := range si.Tables {
			_, issues, err := c.schema.TableDDL(ctx, schemaName, tableName)
			if err != nil {
				return err
			}
			for _, issue := range issues {
				if issue.Status == schemadump.NeedsCompatibilityOption {
					return fmt.Errorf("dumper: %s.%s: %s (enable a compatibility option before dumping)", schemaName, tableName, issue.Description)
				}
			}
		}
	}
	return nil
}

// dump publishes every DDL and ChunkTable task, launches the Worker
// pool, and blocks until either every Worker has drained the Task
// Queue's shutdown signal or one of them reports an exception.
func (c *Coordinator) dump(ctx context.Context) error {
	if err := c.emitStartManifest(ctx); err != nil {
		return err
	}
	if err := c.publishTasks(ctx); err != nil {
		return err
	}
	c.state = Dumping

	go c.watchOutstandingChunking(ctx)

	if err := c.launchWorkers(ctx); err != nil {
		return err
	}
	return c.firstWorkerException()
}

// watchOutstandingChunking polls the outstanding-chunking-task counter
// and shuts the queue down once it reaches zero and the queue is empty,
// the signal that no more MEDIUM or LOW tasks can ever be produced.
func (c *Coordinator) watchOutstandingChunking(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.outstandingChunkingTasks.Load() <= 0 && c.queue.Len() == 0 {
				c.queue.Shutdown(c.cfg.Output.Threads)
				return
			}
		}
	}
}

func (c *Coordinator) publishTasks(ctx context.Context) error {
	for schemaName, si := range c.cache.Schemas {
		if c.cfg.Dump.DumpDDL {
			if err := c.queue.Push(ctx, task.NewDumpSchemaDDL(schemaName)); err != nil {
				return err
			}
		}
		for tableName := range si.Tables {
			if c.cfg.Dump.DumpDDL {
				if err := c.queue.Push(ctx, task.NewDumpTableDDL(schemaName, tableName)); err != nil {
					return err
				}
			}
			if c.cfg.Dump.DumpData {
				c.outstandingChunkingTasks.Add(1)
				if err := c.queue.Push(ctx, task.NewChunkTable(schemaName, tableName)); err != nil {
					return err
				}
			}
		}
		if c.cfg.Dump.DumpDDL {
			for viewName := range si.Views {
				if err := c.queue.Push(ctx, task.NewDumpViewDDL(schemaName, viewName)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Coordinator) emitStartManifest(ctx context.Context) error {
	gtid, err := c.primary.GTIDExecuted(ctx)
	if err != nil {
		c.log.WithError(err).Warn("can't read gtid_executed")
	}
	serverVersion, err := c.primary.ServerVersion(ctx)
	if err != nil {
		c.log.WithError(err).Warn("can't read server version")
	}

	schemas := make([]string, 0, len(c.cache.Schemas))
	basenames := map[string]string{}
	for name := range c.cache.Schemas {
		schemas = append(schemas, name)
		basenames[name] = name
	}

	return manifest.SaveStart(ctx, c.sink, manifest.StartDescriptor{
		RunID:                c.runID,
		DumperVersion:        DumperVersion,
		Schemas:              schemas,
		SchemaBasenames:      basenames,
		Users:                c.cache.Users,
		TimeZoneUTC:          c.cfg.Source.UTCTimeZone,
		BytesPerChunk:        c.cfg.Output.BytesPerChunk,
		ServerVersion:        serverVersion,
		GTIDExecuted:         gtid,
		GTIDInconsistent:     c.gtidInconsistent,
		Consistent:           c.consistent,
		CompatibilityOptions: c.compatibilityOps,
		StartedAt:            time.Now().UTC(),
	})
}

// finalize emits the per-schema and per-table descriptors now that the
// cache has every column, index and row-count fact the loader needs,
// and the closing @.done.json certifying completeness.
func (c *Coordinator) finalize(ctx context.Context) error {
	if err := c.firstWorkerException(); err != nil {
		return err
	}

	if c.cfg.Dump.DumpUsers && len(c.cache.Users) > 0 {
		usersSQL, err := c.schema.UsersSQL(ctx, c.cache.Users)
		if err != nil {
			return err
		}
		if err := manifest.SaveUsers(ctx, c.sink, usersSQL); err != nil {
			return err
		}
	}

	var dataBytesTotal uint64
	var tables []manifest.TableByteCount
	for schemaName, si := range c.cache.Schemas {
		tableNames := make([]string, 0, len(si.Tables))
		for tableName, ti := range si.Tables {
			tableNames = append(tableNames, tableName)
			basename := fmt.Sprintf("%s@%s", schemaName, tableName)
			columns := make([]string, len(ti.Columns))
			for i, col := range ti.Columns {
				columns[i] = col.Name
			}
			_, encodings := dumpwriter.ProjectColumns(ti.Columns, c.encodingMode)
			decodeColumns := make(map[string]string, len(encodings))
			for name, enc := range encodings {
				decodeColumns[name] = enc.DecodeFunction()
			}
			var primaryIndex string
			if ti.ChosenIndex != nil {
				primaryIndex = ti.ChosenIndex.Columns[0]
			}
			if err := manifest.SaveTable(ctx, c.sink, basename, manifest.TableDescriptor{
				Schema: schemaName, Table: tableName, Columns: columns,
				DecodeColumns:    decodeColumns,
				PrimaryIndex:     primaryIndex,
				CompressionCodec: c.cfg.Output.CompressionCodec,
				CharacterSet:     "utf8mb4",
				Dialect:          c.cfg.Output.Format,
				IncludesData:     c.cfg.Dump.DumpData,
				IncludesDDL:      c.cfg.Dump.DumpDDL,
				Extension:        c.writerConfig().Codec.Extension(),
				Chunking:         ti.ChosenIndex != nil,
			}); err != nil {
				return err
			}
			bytes := c.tableDataBytes(schemaName, tableName)
			dataBytesTotal += bytes
			tables = append(tables, manifest.TableByteCount{Schema: schemaName, Table: tableName, DataBytes: bytes})
		}

		views := make([]string, 0, len(si.Views))
		for viewName := range si.Views {
			views = append(views, viewName)
		}
		if err := manifest.SaveSchema(ctx, c.sink, schemaName, manifest.SchemaDescriptor{
			IncludesDDL:  c.cfg.Dump.DumpDDL,
			IncludesData: c.cfg.Dump.DumpData,
			Tables:       tableNames,
			Views:        views,
			Events:       si.Events,
			Functions:    si.Functions,
			Procedures:   si.Procedures,
			Basenames:    map[string]string{"tables": schemaName},
		}); err != nil {
			return err
		}
	}

	if err := manifest.SaveDone(ctx, c.sink, manifest.DoneDescriptor{
		EndedAt:   time.Now().UTC(),
		DataBytes: dataBytesTotal,
		Tables:    tables,
	}); err != nil {
		return err
	}

	if err := c.sink.Close(ctx); err != nil {
		return err
	}
	if c.backupLocked {
		if err := c.primary.BackupUnlock(ctx); err != nil {
			c.log.WithError(err).Warn("UNLOCK INSTANCE failed")
		}
		c.backupLocked = false
	}
	if err := c.primary.Close(); err != nil {
		return err
	}
	c.state = Finalizing
	return nil
}
