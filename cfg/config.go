package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// maxCallWindowHours keeps the call window (ten years) well inside time.Duration
const maxCallWindowHours = 10 * 365 * 24

// SourceFormat selects how CSV lines are interpreted
type SourceFormat string

const (
	SourceAuto     SourceFormat = "auto"     // Pick variant from column count per line
	SourceFlat     SourceFormat = "flat"     // public,private,realm,password
	SourcePrepared SourceFormat = "prepared" // 9-11 columns with pre-built documents and ids
	SourceLegacy   SourceFormat = "legacy"   // public,private,digest,simservs,ifc
)

// WriterConfiguration controls the sorted bulk writers
type WriterConfiguration struct {
	Partitioner         string `toml:"partitioner"` // "random", "byteordered" or "xxhash"
	Compression         string `toml:"compression"` // "snappy", "zstd" or "none"
	BlockSizeKB         int    `toml:"block_size_kb"`
	BloomBitsPerKey     int    `toml:"bloom_bits_per_key"` // 0 disables the filter block
	Overwrite           bool   `toml:"overwrite"`
	FinalizeParallelism int    `toml:"finalize_parallelism"` // 1 = finalize tables one by one
}

// SourceConfiguration controls input adapters
type SourceConfiguration struct {
	Format        SourceFormat `toml:"format"`
	CommentPrefix string       `toml:"comment_prefix"`
}

// CallsConfiguration controls synthetic call-history generation
type CallsConfiguration struct {
	Count               int     `toml:"count"`
	WindowHours         int     `toml:"window_hours"`
	AnsweredProbability float64 `toml:"answered_probability"`
	OutgoingProbability float64 `toml:"outgoing_probability"`
	MaxJitterSeconds    int     `toml:"max_jitter_seconds"`
}

// IdentityConfiguration controls identity derivation
type IdentityConfiguration struct {
	IFCCacheSize int `toml:"ifc_cache_size"` // Distinct domains kept in the IFC cache
}

// SkipJournalConfiguration controls the SQLite journal of skipped records
type SkipJournalConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Relative paths resolve under out_dir
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled  bool   `toml:"enabled"`
	Textfile string `toml:"textfile"` // Written once at the end of a run
	Address  string `toml:"address"`  // Optional HTTP listener while the run is in progress
}

// NotifyConfiguration configures one completion notification sink
type NotifyConfiguration struct {
	Name         string   `toml:"name"`
	Type         string   `toml:"type"` // "kafka" or "nats"
	Brokers      []string `toml:"brokers"`
	NatsURL      string   `toml:"nats_url"`
	Topic        string   `toml:"topic"`
	FilterTables []string `toml:"filter_tables"` // Glob patterns, empty matches everything
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID              uint64 `toml:"node_id"`
	OutDir              string `toml:"out_dir"`
	Seed                int64  `toml:"seed"` // 0 = seed from the clock
	EmitPlaintextSecret bool   `toml:"emit_plaintext_secret"`

	Writer      WriterConfiguration      `toml:"writer"`
	Source      SourceConfiguration      `toml:"source"`
	Calls       CallsConfiguration       `toml:"calls"`
	Identity    IdentityConfiguration    `toml:"identity"`
	SkipJournal SkipJournalConfiguration `toml:"skip_journal"`
	Logging     LoggingConfiguration     `toml:"logging"`
	Prometheus  PrometheusConfiguration  `toml:"prometheus"`
	Notify      []NotifyConfiguration    `toml:"notify"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "provision.toml", "Path to configuration file")
	OutDirFlag      = flag.String("out", "", "Output directory (overrides config)")
	PartitionerFlag = flag.String("partitioner", "", "Partitioner: random|byteordered|xxhash (overrides config)")
	SeedFlag        = flag.Int64("seed", 0, "Random seed (overrides config, 0=config value)")
	VerboseFlag     = flag.Bool("verbose", false, "Enable debug logging")
)

// Default configuration
var Config = Default()

// Default returns a configuration populated with default values
func Default() *Configuration {
	return &Configuration{
		NodeID: 0, // Auto-generate
		OutDir: "./provision-out",

		Writer: WriterConfiguration{
			Partitioner:         "random",
			Compression:         "snappy",
			BlockSizeKB:         64,
			BloomBitsPerKey:     10,
			FinalizeParallelism: 1,
		},

		Source: SourceConfiguration{
			Format:        SourceAuto,
			CommentPrefix: "#",
		},

		Calls: CallsConfiguration{
			Count:               150,
			WindowHours:         7 * 24,
			AnsweredProbability: 0.8,
			OutgoingProbability: 0.5,
			MaxJitterSeconds:    3600,
		},

		Identity: IdentityConfiguration{
			IFCCacheSize: 1024,
		},

		SkipJournal: SkipJournalConfiguration{
			Enabled: false,
			Path:    "skipped.db",
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: false,
		},
	}
}

// Load loads configuration from file and applies CLI overrides. It never
// touches the output directory; commands that write create it themselves.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Debug().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *OutDirFlag != "" {
		Config.OutDir = *OutDirFlag
	}
	if *PartitionerFlag != "" {
		Config.Writer.Partitioner = *PartitionerFlag
	}
	if *SeedFlag != 0 {
		Config.Seed = *SeedFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Debug().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	return nil
}

// generateNodeID creates a node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("provision")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}

	switch Config.Writer.Partitioner {
	case "random", "byteordered", "xxhash":
	default:
		return fmt.Errorf("invalid partitioner: %s", Config.Writer.Partitioner)
	}

	switch Config.Writer.Compression {
	case "snappy", "zstd", "none":
	default:
		return fmt.Errorf("invalid compression: %s", Config.Writer.Compression)
	}

	if Config.Writer.BlockSizeKB < 1 {
		return fmt.Errorf("block size must be >= 1 KB")
	}

	if Config.Writer.BloomBitsPerKey < 0 {
		return fmt.Errorf("bloom bits per key must be >= 0")
	}

	if Config.Writer.FinalizeParallelism < 1 {
		return fmt.Errorf("finalize parallelism must be >= 1")
	}

	switch Config.Source.Format {
	case SourceAuto, SourceFlat, SourcePrepared, SourceLegacy:
	default:
		return fmt.Errorf("invalid source format: %s", Config.Source.Format)
	}

	if Config.Calls.Count < 0 {
		return fmt.Errorf("call count must be >= 0")
	}

	if Config.Calls.WindowHours < 1 || Config.Calls.WindowHours > maxCallWindowHours {
		return fmt.Errorf("call window must be between 1 and %d hours", maxCallWindowHours)
	}

	if Config.Calls.AnsweredProbability < 0 || Config.Calls.AnsweredProbability > 1 {
		return fmt.Errorf("answered probability must be within [0, 1]")
	}

	if Config.Calls.OutgoingProbability < 0 || Config.Calls.OutgoingProbability > 1 {
		return fmt.Errorf("outgoing probability must be within [0, 1]")
	}

	if Config.Calls.MaxJitterSeconds < 0 || Config.Calls.MaxJitterSeconds > 3600 {
		return fmt.Errorf("call jitter must be within [0, 3600] seconds")
	}

	if Config.Identity.IFCCacheSize < 1 {
		return fmt.Errorf("IFC cache size must be >= 1")
	}

	if Config.SkipJournal.Enabled && Config.SkipJournal.Path == "" {
		return fmt.Errorf("skip journal path is required when the journal is enabled")
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", Config.Logging.Format)
	}

	names := make(map[string]bool, len(Config.Notify))
	for _, n := range Config.Notify {
		if n.Name == "" {
			return fmt.Errorf("notify sink name is required")
		}
		if names[n.Name] {
			return fmt.Errorf("duplicate notify sink name: %s", n.Name)
		}
		names[n.Name] = true

		switch n.Type {
		case "kafka":
			if len(n.Brokers) == 0 {
				return fmt.Errorf("notify sink %s: kafka requires brokers", n.Name)
			}
		case "nats":
			if n.NatsURL == "" {
				return fmt.Errorf("notify sink %s: nats requires nats_url", n.Name)
			}
		default:
			return fmt.Errorf("notify sink %s: unknown type %s", n.Name, n.Type)
		}

		if n.Topic == "" {
			return fmt.Errorf("notify sink %s: topic is required", n.Name)
		}
	}

	return nil
}

// SkipJournalPath returns the journal location, resolved against the output directory
func SkipJournalPath() string {
	if filepath.IsAbs(Config.SkipJournal.Path) {
		return Config.SkipJournal.Path
	}
	return filepath.Join(Config.OutDir, Config.SkipJournal.Path)
}

// BlockSize returns the sstable block size in bytes
func (w WriterConfiguration) BlockSize() int {
	return w.BlockSizeKB << 10
}
