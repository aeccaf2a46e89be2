package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// FileName は設定ファイル名。作業ディレクトリから親を辿って探す。
const FileName = "etwin.toml"

// バックエンドの種類
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 設定ファイルと環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	HTTPPort    int    `toml:"http_port" env:"ETWIN_HTTP_PORT,overwrite"`
	ExternalURI string `toml:"external_uri" env:"ETWIN_EXTERNAL_URI,overwrite"`

	// Backend は postgres または memory。
	Backend string `toml:"backend" env:"ETWIN_BACKEND,overwrite"`

	// Secret はメールアドレス暗号化などに使う秘密値。
	Secret string `toml:"secret" env:"ETWIN_SECRET,overwrite"`

	// Logging
	LogLevel string `toml:"log_level" env:"LOG_LEVEL,overwrite"`

	DB     DBConfig     `toml:"db"`
	Remote RemoteConfig `toml:"remote"`
	Worker WorkerConfig `toml:"worker"`
}

// DBConfig はPostgreSQLの接続設定。
type DBConfig struct {
	Host          string `toml:"host" env:"DB_HOST,overwrite"`
	Port          int    `toml:"port" env:"DB_PORT,overwrite"`
	Name          string `toml:"name" env:"DB_NAME,overwrite"`
	User          string `toml:"user" env:"DB_USER,overwrite"`
	Password      string `toml:"password" env:"DB_PASSWORD,overwrite"`
	AdminUser     string `toml:"admin_user" env:"DB_ADMIN_USER,overwrite"`
	AdminPassword string `toml:"admin_password" env:"DB_ADMIN_PASSWORD,overwrite"`
	MaxOpenConns  int    `toml:"max_open_conns"`
}

// RemoteConfig はリモートゲームへのHTTPクライアントの設定。
type RemoteConfig struct {
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	SafeTransport     bool          `toml:"safe_transport"`

	// TwinoidAPIToken はアーカイブにないTwinoidユーザーを取得するときに使うトークン。
	TwinoidAPIToken string `toml:"twinoid_api_token" env:"TWINOID_API_TOKEN,overwrite"`
}

// WorkerConfig はセッション更新ワーカーの設定。
type WorkerConfig struct {
	Interval      time.Duration `toml:"interval"`
	MaxConcurrent int           `toml:"max_concurrent"`
}

// Default は既定値を持つConfigを返す。
func Default() *Config {
	return &Config{
		HTTPPort:    50320,
		ExternalURI: "http://localhost:50320",
		Backend:     BackendPostgres,
		LogLevel:    "info",
		DB: DBConfig{
			Host:         "localhost",
			Port:         5432,
			MaxOpenConns: 5,
		},
		Remote: RemoteConfig{
			Timeout:           5 * time.Second,
			RequestsPerSecond: 10,
			SafeTransport:     true,
		},
		Worker: WorkerConfig{
			Interval:      30 * time.Minute,
			MaxConcurrent: 4,
		},
	}
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// 設定ファイルが見つからない場合は既定値と環境変数のみを使う。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	path, err := Find(wd)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile は path の設定ファイルを読み込み、環境変数で上書きする。path が空の場合はファイルを読まない。
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find は dir から親ディレクトリを辿って設定ファイルを探す。見つからない場合は空文字列を返す。
func Find(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, FileName)
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Validate は必須項目と値の範囲を検証する。未設定の必須項目はまとめて報告する。
func (c *Config) Validate() error {
	var missing []string

	if c.Secret == "" {
		missing = append(missing, "ETWIN_SECRET")
	}

	switch c.Backend {
	case BackendPostgres:
		if c.DB.Host == "" {
			missing = append(missing, "DB_HOST")
		}
		if c.DB.Name == "" {
			missing = append(missing, "DB_NAME")
		}
		if c.DB.User == "" {
			missing = append(missing, "DB_USER")
		}
		if c.DB.Password == "" {
			missing = append(missing, "DB_PASSWORD")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("required configuration values are not set: %v", missing)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 5
	}
	if c.Worker.MaxConcurrent <= 0 {
		c.Worker.MaxConcurrent = 1
	}
	return nil
}

// DatabaseURL はアプリケーションユーザーの接続URLを返す。
func (c DBConfig) DatabaseURL() string {
	return c.url(c.User, c.Password)
}

// AdminDatabaseURL は管理ユーザーの接続URLを返す。未設定の場合はアプリケーションユーザーを使う。
// マイグレーションはこのURLで実行する。
func (c DBConfig) AdminDatabaseURL() string {
	if c.AdminUser == "" {
		return c.DatabaseURL()
	}
	return c.url(c.AdminUser, c.AdminPassword)
}

func (c DBConfig) url(user, password string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ServerAddr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) ServerAddr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}
