// Package timeout defines centralized timeout constants for recommendation operations.
// Package timeout 定义推荐流程的集中式超时常量。
package timeout

import "time"

// External call timeout constants. Each one nests inside RequestTimeout.
// 外部调用超时常量，均嵌套在 RequestTimeout 之内。
const (
	// RequestTimeout bounds a whole recommendation request.
	// RequestTimeout 是单次推荐请求的总超时时间。
	RequestTimeout = 20 * time.Second

	// EmbeddingTimeout is the timeout for one remote embedding batch.
	// EmbeddingTimeout 是单个远程向量批次的超时时间。
	EmbeddingTimeout = 8 * time.Second

	// RerankTimeout is the timeout for a single reranker service call.
	// RerankTimeout 是单个重排服务调用的超时时间。
	RerankTimeout = 5 * time.Second

	// CatalogTimeout is the timeout for an external catalog lookup.
	// CatalogTimeout 是外部目录查询的超时时间。
	CatalogTimeout = 4 * time.Second

	// EnrichmentTimeout is the timeout for best-effort poster enrichment.
	EnrichmentTimeout = 3 * time.Second

	// MaxRerankDocuments is the maximum number of documents sent to a reranker.
	// MaxRerankDocuments 是发送给重排服务的最大文档数。
	MaxRerankDocuments = 100

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
