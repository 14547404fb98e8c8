// Package retrieval 将最新的用户消息向量化，并在按度量划分的向量集合中
// 检索相似文档。
//
// 集合命名为 chat_<metric>。支持两种索引后端：嵌入式 chromem-go 数据库
// 和通过 gRPC 访问的 Qdrant 服务。
package retrieval
