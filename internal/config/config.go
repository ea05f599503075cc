// Package config loads the execution subsystem's configuration from the
// environment, following the ParseConfig/ValidateConfig pattern used
// throughout the runtime-driver packages: parse everything into a
// struct up front, validate once at startup, and pass the struct
// explicitly from then on rather than re-reading the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the control plane and worker pods need,
// assembled once at process startup.
type Config struct {
	// ConnectionToken authenticates runner<->control-plane calls via
	// the X-Reproserver-Authenticate header.
	ConnectionToken string

	// APIEndpoint is the base URL of the control plane's internal API,
	// used by the remote connector and by worker pods.
	APIEndpoint string

	// K8sConfigDir holds operator-supplied cluster resources: the pod
	// spec template (runner-pod-spec.yaml) and an optional kubeconfig.
	K8sConfigDir string

	// RunNamespace is the Kubernetes namespace worker pods are created in.
	RunNamespace string

	// RunNamePrefix is prepended to generated pod/service names.
	RunNamePrefix string

	// RunLabels are extra labels applied to every resource created for a run.
	RunLabels map[string]string

	// RunnerType selects the LaunchStrategy: "local" or "cluster".
	RunnerType string

	// OverrideRunnerImage replaces the runner image named in the pod
	// spec template, if set.
	OverrideRunnerImage string

	// ShutdownTime bounds how long the process waits for in-flight
	// runs to finish before a hard exit on SIGTERM/SIGINT.
	ShutdownTime time.Duration

	// DatabaseURL is the Postgres DSN for the control-plane store.
	DatabaseURL string

	// S3 holds object-store connection settings.
	S3 S3Config

	// RedisAddr selects Redis for pub/sub fanout of run events when
	// non-empty; otherwise an in-process MemoryPubSub is used.
	RedisAddr string

	// ListenAddr is the control-plane internal-API bind address.
	ListenAddr string

	// ProxyListenAddr is the external reverse-proxy bind address.
	ProxyListenAddr string

	// ProxyDomain is the hostname-scheme domain suffix, e.g. "run.example.org".
	ProxyDomain string

	// ShortIDSalt salts the reversible run-id codec.
	ShortIDSalt string

	// Env selects the zap logger profile: "development" or "production".
	Env string
}

// S3Config mirrors the teacher's internal/s3.Config fields one-for-one.
type S3Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	ForcePathStyle  bool
	UseSSL          bool
}

const (
	defaultShutdownTime = 30 * time.Second
	defaultRegion       = "us-east-1"
)

// Load reads configuration from the process environment. It never
// panics; callers must call Validate to enforce required fields.
func Load() *Config {
	cfg := &Config{
		ConnectionToken:     os.Getenv("CONNECTION_TOKEN"),
		APIEndpoint:         os.Getenv("API_ENDPOINT"),
		K8sConfigDir:        os.Getenv("K8S_CONFIG_DIR"),
		RunNamespace:        getenvDefault("RUN_NAMESPACE", "default"),
		RunNamePrefix:       getenvDefault("RUN_NAME_PREFIX", "reproserver-run-"),
		RunLabels:           parseLabels(os.Getenv("RUN_LABELS")),
		RunnerType:          getenvDefault("RUNNER_TYPE", "local"),
		OverrideRunnerImage: os.Getenv("OVERRIDE_RUNNER_IMAGE"),
		ShutdownTime:        parseDurationDefault(os.Getenv("TORNADO_SHUTDOWN_TIME"), defaultShutdownTime),

		DatabaseURL: os.Getenv("REPROSERVER_DATABASE_URL"),
		S3: S3Config{
			Endpoint:        os.Getenv("REPROSERVER_S3_ENDPOINT"),
			Bucket:          os.Getenv("REPROSERVER_S3_BUCKET"),
			AccessKeyID:     os.Getenv("REPROSERVER_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("REPROSERVER_S3_SECRET_KEY"),
			Region:          getenvDefault("REPROSERVER_S3_REGION", defaultRegion),
			ForcePathStyle:  true,
			UseSSL:          parseBoolDefault(os.Getenv("REPROSERVER_S3_USE_SSL"), false),
		},
		RedisAddr:       os.Getenv("REPROSERVER_REDIS_ADDR"),
		ListenAddr:      getenvDefault("REPROSERVER_LISTEN_ADDR", ":8080"),
		ProxyListenAddr: getenvDefault("REPROSERVER_PROXY_LISTEN_ADDR", ":8081"),
		ProxyDomain:     os.Getenv("REPROSERVER_PROXY_DOMAIN"),
		ShortIDSalt:     os.Getenv("REPROSERVER_SHORTID_SALT"),
		Env:             getenvDefault("REPROSERVER_ENV", "production"),
	}

	return cfg
}

// Validate enforces the fields every mode of operation needs. Callers
// running only a worker pod (cmd/runner) should instead check the
// narrower set of fields they actually use.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("REPROSERVER_DATABASE_URL is required")
	}
	if c.S3.Endpoint == "" || c.S3.Bucket == "" || c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
		return fmt.Errorf("REPROSERVER_S3_ENDPOINT, _BUCKET, _ACCESS_KEY and _SECRET_KEY are all required")
	}
	if c.ShortIDSalt == "" {
		return fmt.Errorf("REPROSERVER_SHORTID_SALT is required")
	}
	switch c.RunnerType {
	case "local", "cluster":
	default:
		return fmt.Errorf("RUNNER_TYPE must be \"local\" or \"cluster\", got %q", c.RunnerType)
	}
	if c.RunnerType == "cluster" && c.K8sConfigDir == "" {
		return fmt.Errorf("K8S_CONFIG_DIR is required when RUNNER_TYPE=cluster")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBoolDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseDurationDefault(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// parseLabels parses a "k1=v1,k2=v2" label string, the convention used
// by the teacher's ToMap/ParseConfig pairs for flattening key-value data
// through environment variables.
func parseLabels(v string) map[string]string {
	labels := map[string]string{}
	if v == "" {
		return labels
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		labels[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return labels
}
