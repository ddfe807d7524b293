package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	SMS      SMSConfig      `json:"sms"`
	OSS      OSSConfig      `json:"oss"`
	IMM      IMMConfig      `json:"imm"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env          string        `json:"env"`            // 运行环境: local / prod
	LogLevel     string        `json:"log_level"`      // 日志级别: debug / info / warn / error
	HTTPAddr     string        `json:"http_addr"`      // API 服务监听地址
	CodeTTL      time.Duration `json:"code_ttl"`       // 验证码有效期（如 "5m"）
	SendInterval time.Duration `json:"send_interval"`  // 验证码重发间隔（如 "60s"）
	SendRate     float64       `json:"send_rate"`      // 发码接口每 IP 限流速率（token/s）
	SendBurst    float64       `json:"send_burst"`     // 发码接口每 IP 限流桶容量
	SignTTL      time.Duration `json:"sign_ttl"`       // 签名 URL 默认有效期（如 "1h"）
	ExternalWait time.Duration `json:"external_wait"`  // 外部服务调用超时（邮件/短信/IMM）
	GeoIPEnabled bool          `json:"geo_ip_enabled"` // 是否开启登录 IP 归属地查询
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件发送配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	FromAlias string `json:"from_alias"` // 发信人昵称
}

// SMSConfig 短信发送配置。
type SMSConfig struct {
	Endpoint     string `json:"endpoint"`      // 短信网关地址
	AccessKey    string `json:"access_key"`    // 网关凭证
	AccessSecret string `json:"access_secret"` // 网关密钥
	SignName     string `json:"sign_name"`     // 短信签名
	TemplateCode string `json:"template_code"` // 验证码模板 ID
}

// OSSConfig 对象存储配置。
type OSSConfig struct {
	Endpoint      string `json:"endpoint"`       // S3 兼容接口地址
	Region        string `json:"region"`         // 区域
	AccessKey     string `json:"access_key"`     // AccessKey
	AccessSecret  string `json:"access_secret"`  // AccessSecret
	PrivateBucket string `json:"private_bucket"` // 私有 Bucket（图书文件、资源文件）
	PublicBucket  string `json:"public_bucket"`  // 公共 Bucket（封面、图标、LOGO）
}

// IMMConfig 文档预览服务配置。
type IMMConfig struct {
	Endpoint     string `json:"endpoint"`     // 预览凭证服务地址
	ProjectName  string `json:"project_name"` // IMM Project 名称
	AccessKey    string `json:"access_key"`
	AccessSecret string `json:"access_secret"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret"` // JWT 签名密钥
	TokenTTL  time.Duration `json:"token_ttl"`  // 身份令牌有效期（如 "168h"）
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 环境变量始终优先于文件内容。
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:          "local",
			LogLevel:     "info",
			HTTPAddr:     ":8080",
			CodeTTL:      5 * time.Minute,
			SendInterval: 60 * time.Second,
			SendRate:     1,
			SendBurst:    3,
			SignTTL:      time.Hour,
			ExternalWait: 10 * time.Second,
			GeoIPEnabled: true,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/brillance?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtpdm.aliyun.com",
			SMTPPort:  465,
			FromAlias: "Brillance",
		},
		SMS: SMSConfig{
			Endpoint: "https://dysmsapi.aliyuncs.com",
			SignName: "Brillance",
		},
		OSS: OSSConfig{
			Region: "cn-hangzhou",
		},
		IMM: IMMConfig{
			Endpoint: "https://imm.cn-chengdu.aliyuncs.com",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
			TokenTTL:  7 * 24 * time.Hour,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.CodeTTL == 0 {
		cfg.App.CodeTTL = defaults.App.CodeTTL
	}
	if cfg.App.SendInterval == 0 {
		cfg.App.SendInterval = defaults.App.SendInterval
	}
	if cfg.App.SendRate == 0 {
		cfg.App.SendRate = defaults.App.SendRate
	}
	if cfg.App.SendBurst == 0 {
		cfg.App.SendBurst = defaults.App.SendBurst
	}
	if cfg.App.SignTTL == 0 {
		cfg.App.SignTTL = defaults.App.SignTTL
	}
	if cfg.App.ExternalWait == 0 {
		cfg.App.ExternalWait = defaults.App.ExternalWait
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.FromAlias == "" {
		cfg.Email.FromAlias = defaults.Email.FromAlias
	}
	if cfg.SMS.Endpoint == "" {
		cfg.SMS.Endpoint = defaults.SMS.Endpoint
	}
	if cfg.SMS.SignName == "" {
		cfg.SMS.SignName = defaults.SMS.SignName
	}
	if cfg.OSS.Region == "" {
		cfg.OSS.Region = defaults.OSS.Region
	}
	if cfg.IMM.Endpoint == "" {
		cfg.IMM.Endpoint = defaults.IMM.Endpoint
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("oss_access_key_id", "OSS_ACCESS_KEY_ID")
	_ = viper.BindEnv("oss_access_key_secret", "OSS_ACCESS_KEY_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.CodeTTL = d
		}
	}
	if v := os.Getenv("APP_SEND_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SendInterval = d
		}
	}
	if v := os.Getenv("APP_SEND_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.SendRate = f
		}
	}
	if v := os.Getenv("APP_SEND_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.SendBurst = f
		}
	}
	if v := os.Getenv("APP_SIGN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SignTTL = d
		}
	}
	if v := os.Getenv("APP_EXTERNAL_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ExternalWait = d
		}
	}
	if v := os.Getenv("APP_GEO_IP_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.GeoIPEnabled = b
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = d
		}
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := "3306"
			if p := os.Getenv("DB_PORT"); p != "" {
				port = p
			}
			parsed.Addr = v + ":" + port
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_FROM_ALIAS"); v != "" {
		cfg.Email.FromAlias = v
	}

	if v := os.Getenv("SMS_ENDPOINT"); v != "" {
		cfg.SMS.Endpoint = v
	}
	if v := os.Getenv("SMS_ACCESS_KEY"); v != "" {
		cfg.SMS.AccessKey = v
	}
	if v := os.Getenv("SMS_ACCESS_SECRET"); v != "" {
		cfg.SMS.AccessSecret = v
	}
	if v := os.Getenv("SMS_SIGN_NAME"); v != "" {
		cfg.SMS.SignName = v
	}
	if v := os.Getenv("SMS_TEMPLATE_CODE"); v != "" {
		cfg.SMS.TemplateCode = v
	}

	if v := os.Getenv("OSS_ENDPOINT"); v != "" {
		cfg.OSS.Endpoint = v
	}
	if v := os.Getenv("OSS_REGION"); v != "" {
		cfg.OSS.Region = v
	}
	if v := viper.GetString("oss_access_key_id"); v != "" {
		cfg.OSS.AccessKey = v
	}
	if v := viper.GetString("oss_access_key_secret"); v != "" {
		cfg.OSS.AccessSecret = v
	}
	if v := os.Getenv("OSS_BUCKET"); v != "" {
		cfg.OSS.PrivateBucket = v
	}
	if v := os.Getenv("OSS_BUCKET_PUBLIC"); v != "" {
		cfg.OSS.PublicBucket = v
	}

	if v := os.Getenv("IMM_ENDPOINT"); v != "" {
		cfg.IMM.Endpoint = v
	}
	if v := os.Getenv("IMM_PROJECT_NAME"); v != "" {
		cfg.IMM.ProjectName = v
	}
	if v := os.Getenv("IMM_ACCESS_KEY"); v != "" {
		cfg.IMM.AccessKey = v
	}
	if v := os.Getenv("IMM_ACCESS_SECRET"); v != "" {
		cfg.IMM.AccessSecret = v
	}

	// IMM 与短信网关默认复用 OSS 的云账号凭证
	if cfg.IMM.AccessKey == "" {
		cfg.IMM.AccessKey = cfg.OSS.AccessKey
	}
	if cfg.IMM.AccessSecret == "" {
		cfg.IMM.AccessSecret = cfg.OSS.AccessSecret
	}
	if cfg.SMS.AccessKey == "" {
		cfg.SMS.AccessKey = cfg.OSS.AccessKey
	}
	if cfg.SMS.AccessSecret == "" {
		cfg.SMS.AccessSecret = cfg.OSS.AccessSecret
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "brillance",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		CodeTTL      string `json:"code_ttl"`
		SendInterval string `json:"send_interval"`
		SignTTL      string `json:"sign_ttl"`
		ExternalWait string `json:"external_wait"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CodeTTL != "" {
		d, err := time.ParseDuration(aux.CodeTTL)
		if err != nil {
			return fmt.Errorf("invalid code_ttl format: %w", err)
		}
		a.CodeTTL = d
	}
	if aux.SendInterval != "" {
		d, err := time.ParseDuration(aux.SendInterval)
		if err != nil {
			return fmt.Errorf("invalid send_interval format: %w", err)
		}
		a.SendInterval = d
	}
	if aux.SignTTL != "" {
		d, err := time.ParseDuration(aux.SignTTL)
		if err != nil {
			return fmt.Errorf("invalid sign_ttl format: %w", err)
		}
		a.SignTTL = d
	}
	if aux.ExternalWait != "" {
		d, err := time.ParseDuration(aux.ExternalWait)
		if err != nil {
			return fmt.Errorf("invalid external_wait format: %w", err)
		}
		a.ExternalWait = d
	}

	return nil
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = d
	}

	return nil
}
