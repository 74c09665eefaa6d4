/*
Package gateway - Legal QA 网关

网关把自然语言法律问题转发给上游推理服务，并把答案返回给调用方：
1. apigateway - HTTP/WebSocket/gRPC 入口与 chat/health/root 操作
2. upstream - 上游推理服务的 HTTP 客户端与失败分类

本包只包含跨包共享的数据模型与错误类型。
*/
package gateway
