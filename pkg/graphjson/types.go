package graphjson

import (
	"context"
)

// 文档中的保留字段。
const (
	TypeKey = "@type"
	IDKey   = "@id"
)

// TypeTag 唯一标识一种具体形状，例如 "as.dto.query.Query"。
type TypeTag string

// ReferenceID 是带标签对象在单个文档内的引用编号。
type ReferenceID int64

// Tagged 由参与多态编解码的对象实现。
type Tagged interface {
	GraphType() TypeTag
}

// Instance 是解码过程中正在填充的对象。
// Set 的 field 为存储名（已应用 FieldType.Alias）。
// Interface 返回交给调用方的值，同一个 Instance 必须始终返回同一个值。
type Instance interface {
	Set(field string, value any) error
	Interface() any
}

// Constructor 创建一个空白实例。
type Constructor func() (Instance, error)

// TypeRegistry 把查找键映射到构造器与字段类型描述。
//
// ResolveMany 在一次解码中至多调用一次，是解码唯一可能阻塞的位置。
// 返回结果中缺失的键视为未知类型。
type TypeRegistry interface {
	ResolveMany(ctx context.Context, keys []string) (map[string]Constructor, error)
	FieldTypesOf(key string) (FieldTypeDescriptor, bool)
}
