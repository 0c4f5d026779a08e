// Package registry 提供 graphjson.TypeRegistry 的几种实现：
//
//   - Static：启动时注册、之后只读的内存注册表；
//   - Reflect：从 Go 结构体推导字段规则，实例直接写入结构体字段；
//   - Lazy：按需通过 Loader 加载类型定义，带缓存、合并与重试；
//   - Chain：按顺序组合多个注册表。
//
// 类型定义可以来自 YAML/JSON 描述文件（ParseSchema）或 etcd（EtcdLoader）。
package registry
