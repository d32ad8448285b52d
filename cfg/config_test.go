package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_DefaultConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = Default()

	if err := Validate(); err != nil {
		t.Errorf("Expected no error for default config, got: %v", err)
	}
}

func TestValidate_InvalidPartitioner(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, name := range []string{"", "murmur3", "RANDOM"} {
		Config = Default()
		Config.Writer.Partitioner = name

		if err := Validate(); err == nil {
			t.Errorf("Expected error for partitioner %q", name)
		}
	}
}

func TestValidate_InvalidCompression(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = Default()
	Config.Writer.Compression = "lz4"

	if err := Validate(); err == nil {
		t.Error("Expected error for unsupported compression")
	}
}

func TestValidate_CallWindow(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		hours int
		valid bool
	}{
		{1, true},
		{720, true},
		{maxCallWindowHours, true},
		{0, false},
		{maxCallWindowHours + 1, false},
		{3_000_000, false},
	}

	for _, tt := range tests {
		Config = Default()
		Config.Calls.WindowHours = tt.hours
		err := Validate()
		if tt.valid && err != nil {
			t.Errorf("window_hours=%d: unexpected error: %v", tt.hours, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("window_hours=%d: expected error", tt.hours)
		}
	}
}

func TestValidate_Probabilities(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		answered float64
		outgoing float64
		valid    bool
	}{
		{0.8, 0.5, true},
		{0, 1, true},
		{-0.1, 0.5, false},
		{0.8, 1.5, false},
	}

	for _, tt := range tests {
		Config = Default()
		Config.Calls.AnsweredProbability = tt.answered
		Config.Calls.OutgoingProbability = tt.outgoing

		err := Validate()
		if tt.valid && err != nil {
			t.Errorf("answered=%v outgoing=%v: unexpected error: %v", tt.answered, tt.outgoing, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("answered=%v outgoing=%v: expected error", tt.answered, tt.outgoing)
		}
	}
}

func TestValidate_JitterBound(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = Default()
	Config.Calls.MaxJitterSeconds = 7200

	if err := Validate(); err == nil {
		t.Error("Expected error for jitter above one hour")
	}
}

func TestValidate_FinalizeParallelism(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = Default()
	Config.Writer.FinalizeParallelism = 0

	if err := Validate(); err == nil {
		t.Error("Expected error for zero finalize parallelism")
	}
}

func TestValidate_NotifySinks(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name  string
		sinks []NotifyConfiguration
		valid bool
	}{
		{
			name:  "kafka ok",
			sinks: []NotifyConfiguration{{Name: "k", Type: "kafka", Brokers: []string{"localhost:9092"}, Topic: "provision"}},
			valid: true,
		},
		{
			name:  "kafka without brokers",
			sinks: []NotifyConfiguration{{Name: "k", Type: "kafka", Topic: "provision"}},
		},
		{
			name:  "nats without url",
			sinks: []NotifyConfiguration{{Name: "n", Type: "nats", Topic: "provision"}},
		},
		{
			name:  "unknown type",
			sinks: []NotifyConfiguration{{Name: "x", Type: "http", Topic: "provision"}},
		},
		{
			name: "duplicate names",
			sinks: []NotifyConfiguration{
				{Name: "n", Type: "nats", NatsURL: "nats://localhost:4222", Topic: "a"},
				{Name: "n", Type: "nats", NatsURL: "nats://localhost:4222", Topic: "b"},
			},
		},
		{
			name:  "missing topic",
			sinks: []NotifyConfiguration{{Name: "n", Type: "nats", NatsURL: "nats://localhost:4222"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Config = Default()
			Config.Notify = tt.sinks

			err := Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = Default()

	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "out")
	configPath := filepath.Join(tmpDir, "provision.toml")

	content := `
node_id = 42
out_dir = "` + filepath.ToSlash(outDir) + `"
seed = 7
emit_plaintext_secret = true

[writer]
partitioner = "byteordered"
compression = "zstd"

[calls]
count = 10

[[notify]]
name = "events"
type = "nats"
nats_url = "nats://localhost:4222"
topic = "provision.done"
filter_tables = ["impi", "imp*"]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if err := Load(configPath); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if Config.NodeID != 42 {
		t.Errorf("Expected node_id 42, got %d", Config.NodeID)
	}
	if Config.Seed != 7 {
		t.Errorf("Expected seed 7, got %d", Config.Seed)
	}
	if !Config.EmitPlaintextSecret {
		t.Error("Expected emit_plaintext_secret to be true")
	}
	if Config.Writer.Partitioner != "byteordered" {
		t.Errorf("Expected byteordered partitioner, got %s", Config.Writer.Partitioner)
	}
	if Config.Writer.BlockSizeKB != 64 {
		t.Errorf("Expected default block size to survive decode, got %d", Config.Writer.BlockSizeKB)
	}
	if Config.Calls.Count != 10 {
		t.Errorf("Expected call count 10, got %d", Config.Calls.Count)
	}
	if Config.Calls.AnsweredProbability != 0.8 {
		t.Errorf("Expected default answered probability, got %v", Config.Calls.AnsweredProbability)
	}
	if len(Config.Notify) != 1 || len(Config.Notify[0].FilterTables) != 2 {
		t.Fatalf("Expected one notify sink with two filters, got %+v", Config.Notify)
	}

	if Config.OutDir != filepath.ToSlash(outDir) {
		t.Errorf("Expected out_dir %s, got %s", outDir, Config.OutDir)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("Expected Load to leave the output directory alone, stat: %v", err)
	}

	if err := Validate(); err != nil {
		t.Errorf("Expected loaded config to validate, got: %v", err)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = Default()
	Config.NodeID = 1
	Config.OutDir = filepath.Join(t.TempDir(), "out")

	if err := Load(filepath.Join(t.TempDir(), "missing.toml")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if Config.Writer.Partitioner != "random" {
		t.Errorf("Expected default partitioner, got %s", Config.Writer.Partitioner)
	}
}

func TestSkipJournalPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = Default()
	Config.OutDir = "/tmp/out"
	Config.SkipJournal.Path = "skipped.db"
	if got := SkipJournalPath(); got != filepath.Join("/tmp/out", "skipped.db") {
		t.Errorf("Expected journal under out dir, got %s", got)
	}

	Config.SkipJournal.Path = "/var/lib/skipped.db"
	if got := SkipJournalPath(); got != "/var/lib/skipped.db" {
		t.Errorf("Expected absolute journal path, got %s", got)
	}
}
