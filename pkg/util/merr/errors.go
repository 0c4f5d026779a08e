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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// 叶子错误统一在此定义。
// 命名规则：Err + 所属领域前缀 + 错误名。
// 新增前请先确认下列错误中没有可以复用的。
var (
	// 图文档相关
	ErrDuplicateReferenceID = newCodecError("duplicate reference id", 100, false, WithErrorType(InputError))
	ErrUnresolvedReference  = newCodecError("unresolved reference", 101, false, WithErrorType(InputError))
	ErrMalformedDocument    = newCodecError("malformed graph document", 102, false, WithErrorType(InputError))
	ErrGraphTooDeep         = newCodecError("graph nesting too deep", 103, false, WithErrorType(InputError))
	ErrUnknownField         = newCodecError("unknown field", 104, false, WithErrorType(InputError))
	ErrUnsupportedValue     = newCodecError("unsupported value", 105, false, WithErrorType(InputError))

	// 类型注册相关
	ErrUnknownType            = newCodecError("unknown type", 200, false)
	ErrConstructionFailure    = newCodecError("construction failure", 201, false)
	ErrTypeAlreadyRegistered  = newCodecError("type already registered", 202, false)
	ErrFieldAssign            = newCodecError("field assignment failed", 203, false)
	ErrSchemaInvalid          = newCodecError("invalid type schema", 204, false)
	ErrLoaderUnavailable      = newCodecError("type loader unavailable", 205, true)
	ErrSchemaVersionMismatch  = newCodecError("type schema version mismatch", 206, false)
	ErrRegistryNotInitialized = newCodecError("type registry not initialized", 207, false)

	// 参数相关
	ErrParameterInvalid = newCodecError("invalid parameter", 1100, false)
	ErrParameterMissing = newCodecError("missing parameter", 1101, false)

	// 压缩与序列化相关
	ErrCompressFailed   = newCodecError("compress failed", 1200, false)
	ErrDecompressFailed = newCodecError("decompress failed", 1201, false)

	// 通用
	ErrOperationNotSupported = newCodecError("unsupported operation", 3000, false)

	// 不要导出，仅用于把未知错误转换成 codecError
	errUnexpected = newCodecError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*codecError)

func WithDetail(detail string) errorOption {
	return func(err *codecError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *codecError) {
		err.errType = etype
	}
}

type codecError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newCodecError(msg string, code int32, retriable bool, options ...errorOption) codecError {
	err := codecError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e codecError) code() int32 {
	return e.errCode
}

func (e codecError) Error() string {
	return e.msg
}

func (e codecError) Detail() string {
	return e.detail
}

func (e codecError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(codecError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多错误的 cause 定义为最后一个错误
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
