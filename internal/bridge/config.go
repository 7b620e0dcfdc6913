// Package bridge wires the kernel, rule pipeline, module runtime,
// persistence, and distributed/PoS/lease packages into one running world
// instance, the way a deployment's entrypoint assembles its components.
package bridge

import (
	"os"
	"strconv"
)

// Config is worldd's bootstrap configuration, loaded from environment
// variables with sensible defaults (mirrors the env-var + defaults pattern
// used for the module compiler sandbox, §6.6).
type Config struct {
	WorldID           string
	StateDir          string
	SnapshotInterval  int64 // ticks between automatic snapshots
	MaxSnapshots      int
	ViewerListenAddr  string
	EpochLengthSlots  uint64
	QuorumNum         uint64
	QuorumDenom       uint64
	ModuleCompiler    string
	ModuleMaxFiles    int
	ModuleMaxFileBytes int64
	ModuleMaxTotalBytes int64
	ModuleCompileTimeoutMs int64
}

// LoadConfig reads AGENT_WORLD_* (and §6.6's AGENT_WORLD_MODULE_SOURCE_COMPILER_*)
// environment variables, falling back to defaults for anything unset.
func LoadConfig() Config {
	return Config{
		WorldID:                getEnv("AGENT_WORLD_ID", "world-1"),
		StateDir:                getEnv("AGENT_WORLD_STATE_DIR", "./.agent-world-state"),
		SnapshotInterval:        getEnvInt64("AGENT_WORLD_SNAPSHOT_INTERVAL_TICKS", 100),
		MaxSnapshots:            int(getEnvInt64("AGENT_WORLD_MAX_SNAPSHOTS", 10)),
		ViewerListenAddr:        getEnv("AGENT_WORLD_VIEWER_ADDR", ":8787"),
		EpochLengthSlots:        uint64(getEnvInt64("AGENT_WORLD_EPOCH_LENGTH_SLOTS", 32)),
		QuorumNum:               uint64(getEnvInt64("AGENT_WORLD_QUORUM_NUM", 2)),
		QuorumDenom:             uint64(getEnvInt64("AGENT_WORLD_QUORUM_DENOM", 3)),
		ModuleCompiler:          getEnv("AGENT_WORLD_MODULE_SOURCE_COMPILER", ""),
		ModuleMaxFiles:          int(getEnvInt64("AGENT_WORLD_MODULE_SOURCE_COMPILER_MAX_FILES", 128)),
		ModuleMaxFileBytes:      getEnvInt64("AGENT_WORLD_MODULE_SOURCE_COMPILER_MAX_FILE_BYTES", 512*1024),
		ModuleMaxTotalBytes:     getEnvInt64("AGENT_WORLD_MODULE_SOURCE_COMPILER_MAX_TOTAL_BYTES", 4*1024*1024),
		ModuleCompileTimeoutMs:  getEnvInt64("AGENT_WORLD_MODULE_SOURCE_COMPILER_COMPILE_TIMEOUT_MS", 120000),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
