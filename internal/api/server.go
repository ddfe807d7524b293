package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"brillance/internal/api/middleware"
	"brillance/internal/config"
	"brillance/internal/model"
	"brillance/internal/oss"
	"brillance/internal/otp"
	"brillance/internal/pkg/geoip"
	"brillance/internal/pkg/notify"
	"brillance/internal/pkg/ratelimit"
	"brillance/internal/token"
	"brillance/internal/weboffice"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、验证码服务、令牌签发器以及
// 对象存储 / 文档预览两个外部凭证服务的客户端。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine

	issuer  *token.Issuer
	users   UserStore
	codes   CodeService
	signer  URLSigner
	preview PreviewService
	limiter SendLimiter
	geo     CityResolver
}

// CodeService 验证码的下发与校验。
type CodeService interface {
	RequestCode(ctx context.Context, identifier string, channel model.Channel, purpose string) error
	VerifyCode(ctx context.Context, identifier, code string) (*model.VerificationCode, error)
	Consume(ctx context.Context, id uint) error
}

// URLSigner 为私有对象签发限时访问 URL。
type URLSigner interface {
	SignGetURL(ctx context.Context, filePath string, ttl time.Duration) (string, error)
}

// PreviewService 文档在线预览凭证的签发与刷新。
type PreviewService interface {
	MintToken(ctx context.Context, filePath, fileName string, perm weboffice.Permission, wm *weboffice.Watermark, viewer weboffice.Viewer) (*weboffice.Credential, error)
	RefreshToken(ctx context.Context, refreshToken string) (*weboffice.Credential, error)
}

// SendLimiter 发码接口的来源限流。
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// CityResolver 登录 IP 归属地查询。
type CityResolver interface {
	CityByIP(ctx context.Context, ip string) (string, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 构建验证码、令牌、签名 URL、文档预览等业务组件
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.VerificationCode{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	emailSender := notify.NewEmailSender(&cfg.Email, logger)
	smsSender := notify.NewSMSSender(&cfg.SMS, cfg.App.ExternalWait, logger)
	codes := otp.NewService(otp.NewGormStore(db), emailSender, smsSender,
		cfg.App.CodeTTL, cfg.App.SendInterval, logger)

	signer, err := oss.NewSigner(&cfg.OSS, cfg.App.SignTTL)
	if err != nil {
		return nil, err
	}
	preview, err := weboffice.NewClient(&cfg.IMM, cfg.OSS.PrivateBucket, cfg.App.ExternalWait, logger)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		router:  r,
		issuer:  token.NewIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL),
		users:   dbUserStore{db: db},
		codes:   codes,
		signer:  signer,
		preview: preview,
		limiter: ratelimit.NewLimiter(rdb, "brillance:ratelimit:sendcode", cfg.App.SendRate, cfg.App.SendBurst),
		geo:     geoip.NewResolver(""),
	}
	s.registerRoutes()
	return s, nil
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/auth/send-code", s.handleSendCode)
	s.router.POST("/auth/verify-code", s.handleVerifyCode)
	s.router.POST("/auth/check-email", s.handleCheckEmail)
	s.router.POST("/auth/check-phone", s.handleCheckPhone)
	s.router.POST("/auth/register", s.handleRegister)
	s.router.POST("/auth/login", s.handleLogin)

	authed := s.router.Group("/")
	authed.Use(middleware.Auth(s.issuer, s.users))
	authed.GET("/auth/me", s.handleMe)
	authed.POST("/oss/sign-url", s.handleSignURL)
	authed.POST("/oss/imm-preview", s.handleIMMPreview)
	authed.POST("/oss/imm-refresh", s.handleIMMRefresh)

	admin := s.router.Group("/admin")
	admin.Use(middleware.Auth(s.issuer, s.users))
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.PATCH("/users/:id/ban", s.handleBanUser)
	admin.DELETE("/users/:id/delete", s.handleDeleteUser)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
