package oss

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	appconfig "brillance/internal/config"
	"brillance/internal/pkg/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Signer 为私有对象签发限时访问 URL。
//
// 本身不做任何鉴权——调用方必须先通过访问网关校验。签名是纯函数：
// 同一路径可重复签发，URL 过期即失效，没有吊销机制。
type Signer struct {
	cfg        *appconfig.OSSConfig
	defaultTTL time.Duration
}

// NewSigner 创建 URL 签名器。凭证缺失属于启动期配置错误。
func NewSigner(cfg *appconfig.OSSConfig, defaultTTL time.Duration) (*Signer, error) {
	if cfg.AccessKey == "" || cfg.AccessSecret == "" {
		return nil, fmt.Errorf("oss credentials missing")
	}
	if cfg.PrivateBucket == "" {
		return nil, fmt.Errorf("oss private bucket missing")
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Signer{
		cfg:        cfg,
		defaultTTL: defaultTTL,
	}, nil
}

func (s *Signer) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.AccessSecret,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
		o.UsePathStyle = false
	})

	return newS3PresignClient(client), nil
}

// SignGetURL 为私有 Bucket 中的对象生成限时 GET URL。
//
// filePath 可以是对象路径，也可以是完整 URL（取其 path 部分）。
// ttl <= 0 时使用默认有效期。
func (s *Signer) SignGetURL(ctx context.Context, filePath string, ttl time.Duration) (string, error) {
	key := ObjectPath(filePath)
	if key == "" {
		return "", fmt.Errorf("empty object path")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("init presign client: %w", err)
	}

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.PrivateBucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}

	metrics.SignedURLTotal.Inc()
	return req.URL, nil
}

// PublicURL 返回公共 Bucket 中对象的直链。
func (s *Signer) PublicURL(path string) string {
	key := ObjectPath(path)
	if s.cfg.PublicBucket == "" || key == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.%s.aliyuncs.com/%s", s.cfg.PublicBucket, s.cfg.Region, key)
}

// ObjectPath 从完整 URL 或相对路径中提取对象路径。
// 私有 Bucket 存储的是路径（如 book-files/xxx.pdf），公共 Bucket 存的是完整 URL。
func ObjectPath(urlOrPath string) string {
	if urlOrPath == "" {
		return ""
	}
	if !strings.HasPrefix(urlOrPath, "http://") && !strings.HasPrefix(urlOrPath, "https://") {
		return strings.TrimPrefix(urlOrPath, "/")
	}
	u, err := url.Parse(urlOrPath)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
