package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's process-wide, read-only configuration value. It is
// built once at startup (Load) and threaded through every constructor —
// never read from a package-level global.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Saptiva  SaptivaConfig  `yaml:"saptiva"`
	MCP      MCPConfig      `yaml:"mcp"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Research ResearchConfig `yaml:"research"`
	Files    FilesConfig    `yaml:"files"`
	BankAdvisor BankAdvisorConfig `yaml:"bank_advisor"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	CORSOrigins    []string `yaml:"cors_origins"`
	AllowedHosts   []string `yaml:"allowed_hosts"`
	RateLimitPerHr int      `yaml:"rate_limit_per_hour"`
}

// MongoConfig configures the document store adapter.
type MongoConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// RedisConfig configures the sliding-window limiter / blacklist / result cache.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig configures the Auth & Session Kernel.
type AuthConfig struct {
	JWTSecretKey  string        `yaml:"jwt_secret_key"`
	SecretKey     string        `yaml:"secret_key"`
	AccessExpiry  time.Duration `yaml:"access_expiry"`
	RefreshExpiry time.Duration `yaml:"refresh_expiry"`
	ResetExpiry   time.Duration `yaml:"reset_expiry"`
}

// SaptivaConfig configures the upstream LLM HTTP client.
type SaptivaConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	TotalTimeout      time.Duration `yaml:"total_timeout"`
	ForceMock         bool          `yaml:"force_mock"`
	AllowMockFallback bool          `yaml:"allow_mock_fallback"`
}

// MCPConfig configures the tool-dispatch subsystem.
type MCPConfig struct {
	AdminUsers []string `yaml:"admin_users"`
}

// PromptsConfig locates the declarative prompt registry file.
type PromptsConfig struct {
	RegistryPath           string `yaml:"registry_path"`
	EnableModelSystemPrompt bool  `yaml:"enable_model_system_prompt"`
}

// ResearchConfig gates the deep-research endpoints.
type ResearchConfig struct {
	KillSwitch bool `yaml:"kill_switch"`
}

// FilesConfig configures the file/object-storage collaborator contract.
type FilesConfig struct {
	MaxFileSizeBytes int64  `yaml:"max_file_size_bytes"`
	Root             string `yaml:"root"`
	TTLDays          int    `yaml:"ttl_days"`
	QuotaMBPerUser   int    `yaml:"quota_mb_per_user"`

	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	PresignExpiry   time.Duration `yaml:"presign_expiry"`
}

// BankAdvisorConfig configures the bank_analytics tool's connection to the
// external bank-advisor microservice.
type BankAdvisorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled bool          `yaml:"enabled"`
}

// RetrievalConfig configures the retrieval orchestrator's injected
// capabilities: the embedding model and vector index are external
// collaborators the gateway calls over HTTP rather than embeds (§4.3).
type RetrievalConfig struct {
	EmbeddingBaseURL    string        `yaml:"embedding_base_url"`
	EmbeddingAPIKey     string        `yaml:"embedding_api_key"`
	VectorSearchBaseURL string        `yaml:"vector_search_base_url"`
	VectorSearchAPIKey  string        `yaml:"vector_search_api_key"`
	Timeout             time.Duration `yaml:"timeout"`
}

// Load resolves path (following $include directives) into a Config, then
// applies environment-variable overrides per the recognized env vars.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if _, explicit := raw["research"]; !explicit {
		cfg.Research.KillSwitch = true
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants the server refuses to start without.
func (c *Config) Validate() error {
	if len(c.Auth.SecretKey) > 0 && len(c.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONGODB_URL"); v != "" {
		cfg.Mongo.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecretKey = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.Auth.SecretKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCSVOrJSON(v)
	}
	if v := os.Getenv("ALLOWED_HOSTS"); v != "" {
		cfg.Server.AllowedHosts = splitCSVOrJSON(v)
	}
	if v := os.Getenv("SAPTIVA_BASE_URL"); v != "" {
		cfg.Saptiva.BaseURL = v
	}
	if v := os.Getenv("SAPTIVA_API_KEY"); v != "" {
		cfg.Saptiva.APIKey = v
	}
	if v := os.Getenv("SAPTIVA_CONNECT_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Saptiva.ConnectTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SAPTIVA_READ_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Saptiva.ReadTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SAPTIVA_FORCE_MOCK"); v != "" {
		cfg.Saptiva.ForceMock = parseBool(v)
	}
	if v := os.Getenv("SAPTIVA_ALLOW_MOCK_FALLBACK"); v != "" {
		cfg.Saptiva.AllowMockFallback = parseBool(v)
	}
	if v := os.Getenv("PROMPT_REGISTRY_PATH"); v != "" {
		cfg.Prompts.RegistryPath = v
	}
	if v := os.Getenv("ENABLE_MODEL_SYSTEM_PROMPT"); v != "" {
		cfg.Prompts.EnableModelSystemPrompt = parseBool(v)
	}
	if v, ok := os.LookupEnv("DEEP_RESEARCH_KILL_SWITCH"); ok {
		cfg.Research.KillSwitch = parseBool(v)
	}
	if v := os.Getenv("MCP_ADMIN_USERS"); v != "" {
		cfg.MCP.AdminUsers = splitCSVOrJSON(v)
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Files.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("FILES_ROOT"); v != "" {
		cfg.Files.Root = v
	}
	if v := os.Getenv("FILES_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Files.TTLDays = n
		}
	}
	if v := os.Getenv("FILES_QUOTA_MB_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Files.QuotaMBPerUser = n
		}
	}
	if v := os.Getenv("FILES_BUCKET"); v != "" {
		cfg.Files.Bucket = v
	}
	if v := os.Getenv("FILES_REGION"); v != "" {
		cfg.Files.Region = v
	}
	if v := os.Getenv("FILES_ENDPOINT"); v != "" {
		cfg.Files.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Files.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Files.SecretAccessKey = v
	}
	if v := os.Getenv("BANK_ADVISOR_URL"); v != "" {
		cfg.BankAdvisor.BaseURL = v
	}
	if v := os.Getenv("BANK_ADVISOR_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.BankAdvisor.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v, ok := os.LookupEnv("USE_BANK_ADVISOR"); ok {
		cfg.BankAdvisor.Enabled = parseBool(v)
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Retrieval.EmbeddingBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Retrieval.EmbeddingAPIKey = v
	}
	if v := os.Getenv("VECTOR_SEARCH_BASE_URL"); v != "" {
		cfg.Retrieval.VectorSearchBaseURL = v
	}
	if v := os.Getenv("VECTOR_SEARCH_API_KEY"); v != "" {
		cfg.Retrieval.VectorSearchAPIKey = v
	}
	if v := os.Getenv("RETRIEVAL_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.Timeout = time.Duration(secs) * time.Second
		}
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func splitCSVOrJSON(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
