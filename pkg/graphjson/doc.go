// Package graphjson 实现基于 @type/@id 约定的对象图 JSON 编解码。
//
// Encoder 把可能含环、含共享子对象的对象图折叠成 JSON 安全的树：
// 带类型标签的对象首次出现时分配 @id，之后出现只输出该编号。
// Decoder 执行相反的过程，先扫描文档收集全部 @type 并一次性向
// TypeRegistry 批量解析构造器，再构造实例并还原引用（包括前向引用）。
package graphjson
