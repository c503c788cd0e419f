package errors

import "google.golang.org/grpc/codes"

// 通用错误码 (服务代码 00)
var (
	OK           = Register(New(0, 200, codes.OK, "Success", "成功"))
	ErrInternal  = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), 500, codes.Internal, "Internal server error", "服务器内部错误"))
	ErrTimeout   = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 1), 504, codes.DeadlineExceeded, "Operation timed out", "操作超时"))
	ErrCancelled = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 2), 499, codes.Canceled, "Operation cancelled", "操作已取消"))
)

// docrag 服务代码: 21
// 错误码格式: AABBCCC
var (
	// 请求参数错误 (类别 01)
	ErrInvalidRequest  = Register(New(MakeCode(ServiceDocRAG, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid request parameters", "请求参数无效"))
	ErrInvalidToolArgs = Register(New(MakeCode(ServiceDocRAG, CategoryRequest, 2), 400, codes.InvalidArgument, "Invalid tool arguments", "工具参数无效"))

	// 资源错误 (类别 04)
	ErrDocumentNotFound = Register(New(MakeCode(ServiceDocRAG, CategoryResource, 1), 404, codes.NotFound, "Document file not found", "文档文件不存在"))

	// 内容错误 (类别 13)
	ErrExtraction = Register(New(MakeCode(ServiceDocRAG, CategoryContent, 1), 422, codes.FailedPrecondition, "Document extraction failed", "文档提取失败"))
	ErrNoContent  = Register(New(MakeCode(ServiceDocRAG, CategoryContent, 2), 422, codes.FailedPrecondition, "no content extracted", "未提取到内容"))

	// 外部服务错误 (类别 10 / 08)
	ErrEmbedding   = Register(New(MakeCode(ServiceDocRAG, CategoryNetwork, 1), 502, codes.Unavailable, "Embedding service failed", "向量化服务失败"))
	ErrLLM         = Register(New(MakeCode(ServiceDocRAG, CategoryNetwork, 2), 502, codes.Unavailable, "LLM service failed", "大模型服务失败"))
	ErrVectorStore = Register(New(MakeCode(ServiceDocRAG, CategoryDatabase, 1), 502, codes.Unavailable, "Vector store failed", "向量库操作失败"))
	ErrCache       = Register(New(MakeCode(ServiceDocRAG, CategoryCache, 1), 500, codes.Internal, "Cache operation failed", "缓存操作失败"))

	// 配置错误 (类别 12)
	ErrConfiguration = Register(New(MakeCode(ServiceDocRAG, CategoryConfig, 1), 500, codes.FailedPrecondition, "Configuration error", "配置错误"))

	// 查询错误 (类别 07)
	ErrRAGFailed = Register(New(MakeCode(ServiceDocRAG, CategoryInternal, 1), 500, codes.Internal, "RAG system failed", "RAG 系统失败"))
)

// IsExternal reports whether err originates from an embedding, LLM or vector store dependency.
func IsExternal(err error) bool {
	return Is(err, ErrEmbedding) || Is(err, ErrLLM) || Is(err, ErrVectorStore)
}
