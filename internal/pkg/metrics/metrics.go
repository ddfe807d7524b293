package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 认证与访问代理相关指标。
var (
	// CodesSentTotal 成功投递的验证码数量（按通道）。
	CodesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brillance",
		Name:      "codes_sent_total",
		Help:      "Verification codes delivered successfully.",
	}, []string{"channel"})

	// CodeDeliveryFailedTotal 投递失败（已触发补偿删除）的验证码数量。
	CodeDeliveryFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brillance",
		Name:      "code_delivery_failed_total",
		Help:      "Verification code deliveries that failed and were rolled back.",
	}, []string{"channel"})

	// AuthDeniedTotal 鉴权拒绝数量（按原因: unauthorized / banned / role）。
	AuthDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brillance",
		Name:      "auth_denied_total",
		Help:      "Requests rejected by the access gate.",
	}, []string{"reason"})

	// SignedURLTotal 签发的临时访问 URL 数量。
	SignedURLTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "brillance",
		Name:      "signed_url_total",
		Help:      "Capability URLs minted for private objects.",
	})

	// PreviewTokenTotal 签发的文档预览凭证数量。
	PreviewTokenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "brillance",
		Name:      "preview_token_total",
		Help:      "WebOffice preview tokens minted.",
	})
)
