package config

import (
	"errors"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port        string `envconfig:"APP_PORT" default:"8080"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=chatapp port=5432 sslmode=disable TimeZone=UTC"`
	JWTSecret   string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	Env         string `envconfig:"APP_ENV" default:"dev"`
	MediaDir    string `envconfig:"MEDIA_DIR" default:"./media"`
	MaxUploadMB int64  `envconfig:"MAX_UPLOAD_MB" default:"25"`

	// 逗号分隔的跨域白名单；dev 环境放行所有来源，可留空。
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	// TTL 以字符串读入，解析失败时退回默认值而不是让启动失败。
	AccessTokenTTLRaw string `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"15"`
	RefreshTokenTTLRaw string `envconfig:"REFRESH_TOKEN_TTL_DAYS" default:"7"`

	// 群消息广播是否包含发送者本人；两份历史实现不一致，这里做成配置。
	GroupBroadcastIncludesSender bool `envconfig:"GROUP_BROADCAST_INCLUDES_SENDER" default:"true"`

	AccessTokenTTLMinutes int `ignored:"true"`
	RefreshTokenTTLDays   int `ignored:"true"`
}

// Load 读取 .env（若存在）与环境变量。
func Load() Config {
	_ = godotenv.Load()
	var cfg Config
	envconfig.MustProcess("", &cfg)
	cfg.AccessTokenTTLMinutes = parsePositive(cfg.AccessTokenTTLRaw, 15)
	cfg.RefreshTokenTTLDays = parsePositive(cfg.RefreshTokenTTLRaw, 7)
	return cfg
}

func parsePositive(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Validate 启动前的基本校验；非 dev 环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwt secret is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("config: default jwt secret is not allowed outside dev")
	}
	return nil
}
