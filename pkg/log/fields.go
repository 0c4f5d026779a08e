package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameTypeTag   = "typeTag"
	FieldNameRefID     = "refID"
	FieldNamePath      = "path"
	FieldNameLookupKey = "lookupKey"
	FieldNameTraceID   = "traceID"
	FieldNameSpanID    = "spanID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldTypeTag 返回一个包含 @type 标签的 zap 字段。
func FieldTypeTag(tag string) zap.Field {
	return zap.String(FieldNameTypeTag, tag)
}

// FieldRefID 返回一个包含 @id 引用编号的 zap 字段。
func FieldRefID(id int64) zap.Field {
	return zap.Int64(FieldNameRefID, id)
}

// FieldPath 返回一个包含文档路径（如 $.a.b[2]）的 zap 字段。
func FieldPath(path string) zap.Field {
	return zap.String(FieldNamePath, path)
}

// FieldLookupKey 返回一个包含注册表查找键的 zap 字段。
func FieldLookupKey(key string) zap.Field {
	return zap.String(FieldNameLookupKey, key)
}
