// Package dumpconfig holds the Dump job's configuration: everything
// the Coordinator needs to connect, size its worker pool, shape its
// output, and decide what to include. Loading follows the teacher's
// own pkg/config shape: a YAML file first, environment variables
// layered on top via envconfig, then validation.
package dumpconfig

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/dbdump/config.yml"

// Config is the full Dump job configuration.
type Config struct {
	Source Source `yaml:"source" envconfig:"_"`
	Output Output `yaml:"output" envconfig:"_"`
	Filter Filter `yaml:"filter" envconfig:"_"`
	Dump   Dump   `yaml:"dump" envconfig:"_"`
}

// Source identifies the instance to dump.
type Source struct {
	Host        string `yaml:"host" envconfig:"SOURCE_HOST"`
	Port        int    `yaml:"port" envconfig:"SOURCE_PORT" default:"3306"`
	Username    string `yaml:"username" envconfig:"SOURCE_USERNAME"`
	Password    string `yaml:"password" envconfig:"SOURCE_PASSWORD"`
	Secure      bool   `yaml:"secure" envconfig:"SOURCE_SECURE"`
	UTCTimeZone bool   `yaml:"utc_time_zone" envconfig:"SOURCE_UTC_TIME_ZONE" default:"true"`
}

// Output describes where and how dump files are written.
type Output struct {
	URL                  string `yaml:"url" envconfig:"OUTPUT_URL"`
	Threads              int    `yaml:"threads" envconfig:"OUTPUT_THREADS" default:"4"`
	BytesPerChunk        int64  `yaml:"bytes_per_chunk" envconfig:"OUTPUT_BYTES_PER_CHUNK" default:"67108864"`
	WithRowIndex         bool   `yaml:"with_row_index" envconfig:"OUTPUT_WITH_ROW_INDEX" default:"true"`
	CompressionCodec     string `yaml:"compression_codec" envconfig:"OUTPUT_COMPRESSION_CODEC" default:"gzip"`
	CompressionLevel     int    `yaml:"compression_level" envconfig:"OUTPUT_COMPRESSION_LEVEL" default:"6"`
	Format               string `yaml:"format" envconfig:"OUTPUT_FORMAT" default:"csv"`
	FieldTerminator      string `yaml:"field_terminator" envconfig:"OUTPUT_FIELD_TERMINATOR"`
	LineTerminator       string `yaml:"line_terminator" envconfig:"OUTPUT_LINE_TERMINATOR"`
	EnclosedBy           string `yaml:"enclosed_by" envconfig:"OUTPUT_ENCLOSED_BY"`
	EscapedBy            string `yaml:"escaped_by" envconfig:"OUTPUT_ESCAPED_BY"`
	EncodingUnsafeFormat string `yaml:"encoding_unsafe_format" envconfig:"OUTPUT_ENCODING_UNSAFE_FORMAT" default:"auto"`
}

// Filter narrows which schemas, tables, and users get dumped.
type Filter struct {
	IncludeSchemas []string `yaml:"include_schemas" envconfig:"FILTER_INCLUDE_SCHEMAS"`
	ExcludeSchemas []string `yaml:"exclude_schemas" envconfig:"FILTER_EXCLUDE_SCHEMAS"`
	IncludeTables  []string `yaml:"include_tables" envconfig:"FILTER_INCLUDE_TABLES"`
	ExcludeTables  []string `yaml:"exclude_tables" envconfig:"FILTER_EXCLUDE_TABLES"`
	IncludeUsers   []string `yaml:"include_users" envconfig:"FILTER_INCLUDE_USERS"`
	ExcludeUsers   []string `yaml:"exclude_users" envconfig:"FILTER_EXCLUDE_USERS"`
}

// Dump toggles which object kinds the job emits, and the consistency
// and compatibility posture it runs under.
type Dump struct {
	ConsistentSnapshot          bool   `yaml:"consistent_snapshot" envconfig:"DUMP_CONSISTENT_SNAPSHOT" default:"true"`
	DumpDDL                     bool   `yaml:"dump_ddl" envconfig:"DUMP_DDL" default:"true"`
	DumpData                    bool   `yaml:"dump_data" envconfig:"DUMP_DATA" default:"true"`
	DumpUsers                   bool   `yaml:"dump_users" envconfig:"DUMP_USERS" default:"false"`
	DumpEvents                  bool   `yaml:"dump_events" envconfig:"DUMP_EVENTS" default:"true"`
	DumpRoutines                bool   `yaml:"dump_routines" envconfig:"DUMP_ROUTINES" default:"true"`
	DumpTriggers                bool   `yaml:"dump_triggers" envconfig:"DUMP_TRIGGERS" default:"true"`
	CompatibilityPassEnabled    bool   `yaml:"compatibility_pass_enabled" envconfig:"DUMP_COMPATIBILITY_PASS_ENABLED" default:"false"`
	StripDefiners               bool   `yaml:"strip_definers" envconfig:"DUMP_STRIP_DEFINERS" default:"false"`
	StripStorageClauses         bool   `yaml:"strip_storage_clauses" envconfig:"DUMP_STRIP_STORAGE_CLAUSES" default:"false"`
	UpgradeTableOptions         bool   `yaml:"upgrade_table_options" envconfig:"DUMP_UPGRADE_TABLE_OPTIONS" default:"false"`
	RateLimitBytesPerSecond     int64  `yaml:"rate_limit_bytes_per_second" envconfig:"DUMP_RATE_LIMIT_BYTES_PER_SECOND" default:"0"`
	TaskQueueCapacityPerLane    int    `yaml:"task_queue_capacity_per_lane" envconfig:"DUMP_TASK_QUEUE_CAPACITY_PER_LANE" default:"1000"`
	Job                         string `yaml:"job" envconfig:"DUMP_JOB"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads configLocation if present, layers environment
// variables on top, and validates the result. A missing file is not
// an error: defaults plus environment variables can fully configure a
// job, matching how the teacher's LoadConfig tolerates os.IsNotExist.
func LoadConfig(configLocation string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(configLocation)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("can't open config file: %v", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("can't parse config file: %v", err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	cfg.Output.URL = strings.TrimRight(strings.TrimSpace(cfg.Output.URL), "/")
	if cfg.Output.Threads <= 0 {
		cfg.Output.Threads = runtime.NumCPU()
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the Coordinator could not safely
// run, mirroring the teacher's ValidateConfig/ValidateObjectDiskConfig
// pattern of one named error per broken invariant.
func Validate(cfg *Config) error {
	if cfg.Source.Host == "" {
		return fmt.Errorf("source.host is required")
	}
	if cfg.Output.URL == "" {
		return fmt.Errorf("output.url is required")
	}
	if cfg.Output.Threads <= 0 {
		return fmt.Errorf("output.threads must be positive")
	}
	if cfg.Output.BytesPerChunk <= 0 {
		return fmt.Errorf("output.bytes_per_chunk must be positive")
	}
	if cfg.Dump.TaskQueueCapacityPerLane <= 0 {
		return fmt.Errorf("dump.task_queue_capacity_per_lane must be positive")
	}
	if cfg.Dump.Job == "" {
		cfg.Dump.Job = "dbdump"
	}
	return nil
}
