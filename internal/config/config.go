// Package config loads the reconciler's runtime configuration from a YAML
// file with .env and environment-variable overrides, grounded on the
// teacher's internal/config/config.go: gopkg.in/yaml.v2 decode into a
// typed struct, then a field-by-field applyEnvOverrides pass, then
// applyDefaults for anything still zero. godotenv.Load is grounded on
// cmd/verify-tables/main.go's best-effort ".env not found" load.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every tunable named in spec.md §6, plus the persistence
// settings the domain stack needs to reach Postgres and Redis.
type Config struct {
	Ring       RingConfig       `yaml:"ring"`
	Hash       HashConfig       `yaml:"hash"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Lockchain  LockchainConfig  `yaml:"lockchain"`
	Inspection InspectionConfig `yaml:"inspection"`
}

// RingConfig sizes the Δ-ring and A-ring (spec.md §4.1, §4.2).
type RingConfig struct {
	CapacityPerTick uint64 `yaml:"capacity_per_tick"`
	ShardCount      uint32 `yaml:"shard_count"`
	CyclesPerTick   int64  `yaml:"cycles_per_tick"`
}

// HashConfig selects the provenance and Merkle commitment hash
// algorithms independently (spec.md §9: "do not conflate them").
type HashConfig struct {
	ProvenanceAlgorithm string `yaml:"provenance_algorithm"` // "fnv1a-64" | "blake3-64"
	MerkleAlgorithm     string `yaml:"merkle_algorithm"`     // "sha256" | "blake3"
}

// AdmissionConfig holds the park-rate gate's tunables (spec.md §6, §4.8).
type AdmissionConfig struct {
	ParkRateCeiling       float64 `yaml:"park_rate_ceiling"`
	WindowSize            int     `yaml:"window_size"`
	C1ParkRateThreshold   float64 `yaml:"c1_park_rate_threshold"`
	C1EscalationThreshold int     `yaml:"c1_escalation_threshold"`
	CapacityPerCycle      uint32  `yaml:"capacity_per_cycle"`
}

// PostgresConfig configures the lockchain's Postgres adapter.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the W1 drain queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

// LockchainConfig selects and configures the commit-time lockchain
// adapter.
type LockchainConfig struct {
	Adapter string `yaml:"adapter"` // "postgres" | "grpc" | "none"
	GRPCAddr string `yaml:"grpc_addr"`
}

// InspectionConfig configures the read-only HTTP inspection surface.
type InspectionConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads path as YAML into a Config, then applies .env and
// environment-variable overrides, then fills remaining zero values with
// defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Matches the teacher's best-effort convention: a missing .env is
		// not fatal, every setting can still arrive via real env vars.
	}

	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvUint64("RING_CAPACITY_PER_TICK", 0); v > 0 {
		c.Ring.CapacityPerTick = v
	}
	if v := getEnvInt("RING_SHARD_COUNT", 0); v > 0 {
		c.Ring.ShardCount = uint32(v)
	}
	if v := getEnvInt64("RING_CYCLES_PER_TICK", 0); v > 0 {
		c.Ring.CyclesPerTick = v
	}

	c.Hash.ProvenanceAlgorithm = getEnv("HASH_PROVENANCE_ALGORITHM", c.Hash.ProvenanceAlgorithm)
	c.Hash.MerkleAlgorithm = getEnv("HASH_MERKLE_ALGORITHM", c.Hash.MerkleAlgorithm)

	if v := getEnvFloat("ADMISSION_PARK_RATE_CEILING", -1); v >= 0 {
		c.Admission.ParkRateCeiling = v
	}
	if v := getEnvInt("ADMISSION_WINDOW_SIZE", 0); v > 0 {
		c.Admission.WindowSize = v
	}
	if v := getEnvFloat("ADMISSION_C1_PARK_RATE_THRESHOLD", -1); v >= 0 {
		c.Admission.C1ParkRateThreshold = v
	}
	if v := getEnvInt("ADMISSION_C1_ESCALATION_THRESHOLD", 0); v > 0 {
		c.Admission.C1EscalationThreshold = v
	}

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", 0); v > 0 {
		c.Redis.DB = v
	}
	c.Redis.QueueKey = getEnv("REDIS_QUEUE_KEY", c.Redis.QueueKey)

	c.Lockchain.Adapter = getEnv("LOCKCHAIN_ADAPTER", c.Lockchain.Adapter)
	c.Lockchain.GRPCAddr = getEnv("LOCKCHAIN_GRPC_ADDR", c.Lockchain.GRPCAddr)

	c.Inspection.Addr = getEnv("INSPECTION_ADDR", c.Inspection.Addr)
}

func (c *Config) applyDefaults() {
	if c.Ring.CapacityPerTick == 0 {
		c.Ring.CapacityPerTick = 4096
	}
	if c.Ring.ShardCount == 0 {
		c.Ring.ShardCount = 8
	}
	if c.Ring.CyclesPerTick == 0 {
		c.Ring.CyclesPerTick = 1
	}
	if c.Hash.ProvenanceAlgorithm == "" {
		c.Hash.ProvenanceAlgorithm = "fnv1a-64"
	}
	if c.Hash.MerkleAlgorithm == "" {
		c.Hash.MerkleAlgorithm = "sha256"
	}
	if c.Admission.ParkRateCeiling == 0 {
		c.Admission.ParkRateCeiling = 0.20
	}
	if c.Admission.WindowSize == 0 {
		c.Admission.WindowSize = 8
	}
	if c.Admission.C1ParkRateThreshold == 0 {
		c.Admission.C1ParkRateThreshold = 0.05
	}
	if c.Admission.C1EscalationThreshold == 0 {
		c.Admission.C1EscalationThreshold = 3
	}
	if c.Lockchain.Adapter == "" {
		c.Lockchain.Adapter = "none"
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "reconciler:w1-drain"
	}
	if c.Inspection.Addr == "" {
		c.Inspection.Addr = ":8090"
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvUint64(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
