// Package biz 实现 docrag 的业务流程：文档摄取（提取、分块、向量化、入库）、
// 检索上下文构建、提示词组装、答案生成以及带工具调用的智能体查询。
//
// 所有外部依赖（向量库、Embedding、Chat 供应商）均通过接口注入，
// 由 DocService 统一对 CLI 与 HTTP 层提供服务。
package biz
