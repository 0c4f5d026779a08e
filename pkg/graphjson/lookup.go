package graphjson

import (
	"strings"

	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// LookupKeyFunc 把类型标签转换成注册表使用的键。
type LookupKeyFunc func(tag TypeTag) string

// DottedKey 原样使用类型标签。
func DottedKey(tag TypeTag) string {
	return string(tag)
}

// SlashKey 把点分隔的类型标签转换成斜杠分隔的模块路径。
func SlashKey(tag TypeTag) string {
	return strings.ReplaceAll(string(tag), ".", "/")
}

const (
	LookupKeyDotted = "dotted"
	LookupKeySlash  = "slash"
)

// LookupKeyByName 返回配置项对应的 LookupKeyFunc。
func LookupKeyByName(name string) (LookupKeyFunc, error) {
	switch strings.ToLower(name) {
	case "", LookupKeyDotted:
		return DottedKey, nil
	case LookupKeySlash:
		return SlashKey, nil
	default:
		return nil, merr.WrapErrParameterInvalid(LookupKeyDotted+"|"+LookupKeySlash, name, "unknown lookup key style")
	}
}
