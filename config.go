// config.go
package parkcluster

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds per-node configuration (spec.md §6 "Configuration (per
// node)"). It is assembled from environment variables in cmd/node/main.go
// following the teacher's main.go idiom (os.Getenv + trim + fallback,
// log.Fatal on a required value that is missing) rather than a config-file
// library.
type Config struct {
	BrokerHost     string
	BrokerPorts    []int
	BrokerUser     string
	BrokerPassword string
	ClusterSecret  string

	NodeID   NodeID
	MinNodes int

	HeartbeatInterval     time.Duration
	LeaderCheckInterval   time.Duration
	InitialWaitTime       time.Duration
	RequestReplyTimeout   time.Duration
	BrokerReconnectDelay  time.Duration
	ConsensusRoundTimeout time.Duration
}

// defaults holds the reference timings from spec.md §6.
func defaults() Config {
	return Config{
		BrokerHost:            "localhost",
		BrokerPorts:           []int{5672},
		HeartbeatInterval:     5 * time.Second,
		LeaderCheckInterval:   7 * time.Second,
		InitialWaitTime:       5 * time.Second,
		RequestReplyTimeout:   15 * time.Second,
		BrokerReconnectDelay:  5 * time.Second,
		ConsensusRoundTimeout: 20 * time.Second,
		MinNodes:              1,
	}
}

// LoadConfigFromEnv reads the recognized keys from the process environment.
// Exits the process (log.Fatal) if NODE_ID is unset, mirroring the
// teacher's treatment of CLUSTER_HMAC_SECRET as a hard requirement.
func LoadConfigFromEnv() Config {
	cfg := defaults()

	cfg.BrokerHost = fallback(os.Getenv("BROKER_HOST"), cfg.BrokerHost)
	if ports := strings.TrimSpace(os.Getenv("BROKER_PORTS")); ports != "" {
		cfg.BrokerPorts = parsePorts(ports, cfg.BrokerPorts)
	}
	cfg.BrokerUser = os.Getenv("BROKER_USER")
	cfg.BrokerPassword = os.Getenv("BROKER_PASSWORD")
	cfg.ClusterSecret = strings.TrimSpace(os.Getenv("CLUSTER_HMAC_SECRET"))

	nodeID := strings.TrimSpace(os.Getenv("NODE_ID"))
	if nodeID == "" {
		log.Fatal("NODE_ID must be defined to identify this cluster node")
	}
	cfg.NodeID = NodeID(nodeID)

	cfg.MinNodes = parseIntDefault(os.Getenv("MIN_NODES"), cfg.MinNodes)
	if cfg.MinNodes < 1 {
		cfg.MinNodes = 1
	}

	cfg.HeartbeatInterval = parseDurationDefault(os.Getenv("HEARTBEAT_INTERVAL"), cfg.HeartbeatInterval)
	cfg.LeaderCheckInterval = parseDurationDefault(os.Getenv("LEADER_CHECK_INTERVAL"), cfg.LeaderCheckInterval)
	cfg.InitialWaitTime = parseDurationDefault(os.Getenv("INITIAL_WAIT_TIME"), cfg.InitialWaitTime)
	cfg.RequestReplyTimeout = parseDurationDefault(os.Getenv("REQUEST_REPLY_TIMEOUT"), cfg.RequestReplyTimeout)
	cfg.BrokerReconnectDelay = parseDurationDefault(os.Getenv("BROKER_RECONNECT_DELAY"), cfg.BrokerReconnectDelay)
	cfg.ConsensusRoundTimeout = parseDurationDefault(os.Getenv("CONSENSUS_ROUND_TIMEOUT"), cfg.ConsensusRoundTimeout)

	return cfg
}

func fallback(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}

func parsePorts(raw string, def []int) []int {
	chunks := strings.Split(raw, ",")
	out := make([]int, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if p, err := strconv.Atoi(c); err == nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func parseIntDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseDurationDefault(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
