// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	var specificErr codecError
	if errors.As(err, &specificErr) {
		return specificErr.code()
	}
	if errors.Is(err, context.Canceled) {
		return CanceledCode
	} else if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutCode
	}
	return errUnexpected.code()
}

// IsRetryableErr 判断错误链上的 codecError 是否允许重试。
func IsRetryableErr(err error) bool {
	var specificErr codecError
	if errors.As(err, &specificErr) {
		return specificErr.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	var specificErr codecError
	if errors.As(err, &specificErr) {
		return specificErr.errType
	}
	return SystemError
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(codecError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// 图文档相关错误封装。

func WrapErrDuplicateReferenceID(id int64, path, firstPath string) error {
	return wrapFields(ErrDuplicateReferenceID,
		value("id", id),
		value("path", path),
		value("firstDefinedAt", firstPath),
	)
}

func WrapErrUnresolvedReference(id int64, path string) error {
	return wrapFields(ErrUnresolvedReference,
		value("id", id),
		value("path", path),
	)
}

func WrapErrMalformedDocument(path string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrMalformedDocument, reason, value("path", path))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrGraphTooDeep(path string, limit int) error {
	return wrapFields(ErrGraphTooDeep,
		value("path", path),
		value("maxDepth", limit),
	)
}

func WrapErrUnknownField(typeTag, field, path string) error {
	return wrapFields(ErrUnknownField,
		value("type", typeTag),
		value("field", field),
		value("path", path),
	)
}

func WrapErrUnsupportedValue(path string, kind any) error {
	return wrapFields(ErrUnsupportedValue,
		value("path", path),
		value("kind", kind),
	)
}

// 类型注册相关错误封装。

func WrapErrUnknownType(typeTag, key string) error {
	return wrapFields(ErrUnknownType,
		value("type", typeTag),
		value("key", key),
	)
}

func WrapErrConstructionFailure(typeTag, path string, cause error) error {
	err := wrapFields(ErrConstructionFailure,
		value("type", typeTag),
		value("path", path),
	)
	if cause != nil {
		err = Combine(cause, err)
	}
	return err
}

func WrapErrTypeAlreadyRegistered(typeTag string) error {
	return wrapFields(ErrTypeAlreadyRegistered, value("type", typeTag))
}

func WrapErrFieldAssign(typeTag, field, path string, cause error) error {
	err := wrapFields(ErrFieldAssign,
		value("type", typeTag),
		value("field", field),
		value("path", path),
	)
	if cause != nil {
		err = Combine(cause, err)
	}
	return err
}

func WrapErrSchemaInvalid(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSchemaInvalid, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSchemaVersionMismatch(got, supported string) error {
	return wrapFields(ErrSchemaVersionMismatch,
		value("got", got),
		value("supported", supported),
	)
}

func WrapErrLoaderUnavailable(key string, cause error) error {
	err := wrapFields(ErrLoaderUnavailable, value("key", key))
	if cause != nil {
		err = Combine(cause, err)
	}
	return err
}

// 参数相关错误封装。

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 压缩相关错误封装。

func WrapErrCompress(algorithm string, cause error) error {
	return Combine(cause, wrapFields(ErrCompressFailed, value("algorithm", algorithm)))
}

func WrapErrDecompress(algorithm string, cause error) error {
	return Combine(cause, wrapFields(ErrDecompressFailed, value("algorithm", algorithm)))
}

func WrapErrOperationNotSupported(operation string) error {
	return wrapFields(ErrOperationNotSupported, value("operation", operation))
}

func wrapFields(err codecError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err codecError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
