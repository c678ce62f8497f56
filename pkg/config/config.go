package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	once   sync.Once
	config *Config
)

// Config 全局配置结构
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Casbin        CasbinConfig        `mapstructure:"casbin"`
	Authorization AuthorizationConfig `mapstructure:"authorization"`
	Captcha       CaptchaConfig       `mapstructure:"captcha"`
	Log           LogConfig           `mapstructure:"log"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
	NodeID  string `mapstructure:"nodeId"` // 为空时启动时生成
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// Addr 监听地址
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	LogLevel     string `mapstructure:"logLevel"`
}

// DSN 生成数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	case "sqlite":
		if c.Database == "" {
			return ":memory:"
		}
		return c.Database
	default:
		return ""
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
	Mode     string `mapstructure:"mode"` // "standalone" 外部 Redis, "memory" 内存模式
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	Algorithm         string `mapstructure:"algorithm"`
	Issuer            string `mapstructure:"issuer"`
	LoginDays         int    `mapstructure:"loginDays"`         // 访问令牌有效天数 1-30
	RefreshExtraHours int    `mapstructure:"refreshExtraHours"` // 刷新令牌比访问令牌多出的小时数
	StrictSession     bool   `mapstructure:"strictSession"`     // 要求会话登记的令牌与请求令牌一致
	MultiLogin        bool   `mapstructure:"multiLogin"`        // 是否允许同一用户多处登录
}

// CasbinConfig Casbin配置
type CasbinConfig struct {
	ModelPath   string `mapstructure:"modelPath"`   // 为空时使用内置模型
	Table       string `mapstructure:"table"`       // 策略快照表名
	SyncChannel string `mapstructure:"syncChannel"` // 跨节点策略变更频道
}

// AuthorizationConfig 鉴权中间件配置
type AuthorizationConfig struct {
	WhiteList         []string `mapstructure:"whiteList"`
	LoginOnlyList     []string `mapstructure:"loginOnlyList"`
	OnEvaluationError string   `mapstructure:"onEvaluationError"` // allow | deny
}

// CaptchaConfig 验证码配置
type CaptchaConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		config, err = Load(configPath)
	})
	return err
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 没有配置文件时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}

	if env != "" && env != "default" && configPath == "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveEnvVars(cfg)
	normalize(cfg)

	return cfg, nil
}

// setDefaults 默认配置，空配置文件也能以内存模式启动
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "admin")
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.database", "admin.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.maxIdleConns", 10)
	v.SetDefault("database.maxOpenConns", 100)
	v.SetDefault("database.logLevel", "warn")
	v.SetDefault("redis.mode", "memory")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.issuer", "goauthz")
	v.SetDefault("jwt.loginDays", 1)
	v.SetDefault("jwt.refreshExtraHours", 2)
	v.SetDefault("jwt.strictSession", true)
	v.SetDefault("jwt.multiLogin", true)
	v.SetDefault("casbin.table", "casbin_snapshot")
	v.SetDefault("casbin.syncChannel", "casbin:policy")
	v.SetDefault("authorization.onEvaluationError", "deny")
	v.SetDefault("authorization.whiteList", DefaultWhiteList)
	v.SetDefault("authorization.loginOnlyList", DefaultLoginOnlyList)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "console")
}

// DefaultWhiteList 无需认证的路径前缀
var DefaultWhiteList = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/auth/captcha",
	"/api/auth/code",
	"/api/auth/logout",
	"/api/auth/refreshToken",
	"/api/casbin/data-scope-info",
	"/api/notification/ws",
	"/health",
	"/docs",
	"/assets",
	"/api/assets",
}

// DefaultLoginOnlyList 仅需登录的路径前缀
var DefaultLoginOnlyList = []string{
	"/api/auth/info",
	"/api/auth/routes",
	"/api/casbin/data-scope",
}

// normalize 修正越界的配置值
func normalize(cfg *Config) {
	if cfg.JWT.LoginDays < 1 {
		cfg.JWT.LoginDays = 1
	}
	if cfg.JWT.LoginDays > 30 {
		cfg.JWT.LoginDays = 30
	}
	if cfg.Authorization.OnEvaluationError != "allow" {
		cfg.Authorization.OnEvaluationError = "deny"
	}
}

// resolveEnvVars 解析环境变量占位符
func resolveEnvVars(cfg *Config) {
	cfg.Database.Host = resolveEnvVar(cfg.Database.Host)
	cfg.Database.Username = resolveEnvVar(cfg.Database.Username)
	cfg.Database.Password = resolveEnvVar(cfg.Database.Password)
	cfg.Database.Database = resolveEnvVar(cfg.Database.Database)
	cfg.Redis.Host = resolveEnvVar(cfg.Redis.Host)
	cfg.Redis.Password = resolveEnvVar(cfg.Redis.Password)
	cfg.JWT.Secret = resolveEnvVar(cfg.JWT.Secret)
}

// resolveEnvVar 解析单个环境变量
func resolveEnvVar(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envKey := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return value
}

// Get 获取配置实例
func Get() *Config {
	if config == nil {
		panic("config not initialized, call Init first")
	}
	return config
}

// IsDev 是否为开发环境
func (c *Config) IsDev() bool {
	return c.App.Env == "dev" || c.App.Env == "development"
}
