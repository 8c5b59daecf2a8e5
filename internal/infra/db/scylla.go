package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gocql/gocql"

	"github.com/ProductBay/vynce/internal/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// Scylla wraps a gocql session.
type Scylla struct {
	session *gocql.Session
	cfg     config.ScyllaConfig
}

// NewScylla creates a new Scylla session. Unless schema init is disabled the keyspace is
// created first with a single-replica SimpleStrategy, which suits development clusters.
func NewScylla(cfg config.ScyllaConfig) (*Scylla, error) {
	if !keyspacePattern.MatchString(cfg.Keyspace) {
		return nil, fmt.Errorf("scylla: invalid keyspace %q", cfg.Keyspace)
	}

	if !cfg.DisableInitSchema {
		bootstrap, err := newCluster(cfg, "").CreateSession()
		if err != nil {
			return nil, fmt.Errorf("scylla: bootstrap session: %w", err)
		}
		err = bootstrap.Query(fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
			WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Keyspace)).Exec()
		bootstrap.Close()
		if err != nil {
			return nil, fmt.Errorf("scylla: create keyspace: %w", err)
		}
	}

	session, err := newCluster(cfg, cfg.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: create session: %w", err)
	}

	return &Scylla{session: session, cfg: cfg}, nil
}

func newCluster(cfg config.ScyllaConfig, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}
	return cluster
}

// EnsureSchema runs idempotent DDL statements unless schema init is disabled.
func (s *Scylla) EnsureSchema(ctx context.Context, statements ...string) error {
	if s.cfg.DisableInitSchema {
		return nil
	}
	for _, stmt := range statements {
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla: apply schema: %w", err)
		}
	}
	return nil
}

// Session exposes the gocql session.
func (s *Scylla) Session() *gocql.Session {
	return s.session
}

// Ping runs a trivial query for health probes.
func (s *Scylla) Ping(ctx context.Context) error {
	return s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

// Close shuts down the session.
func (s *Scylla) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

func parseConsistency(level string) gocql.Consistency {
	switch level {
	case "one":
		return gocql.One
	case "local_quorum":
		return gocql.LocalQuorum
	case "local_one":
		return gocql.LocalOne
	case "each_quorum":
		return gocql.EachQuorum
	case "quorum":
		fallthrough
	default:
		return gocql.Quorum
	}
}
