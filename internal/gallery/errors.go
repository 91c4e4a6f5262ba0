package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/photo365/photo365/internal/pathguard"
	"github.com/photo365/photo365/internal/thumbnail"
)

// Kind 区分四类失败。
type Kind int

const (
	KindNotAllowed Kind = iota + 1
	KindFs
	KindCache
	KindThumb
)

func (k Kind) String() string {
	switch k {
	case KindNotAllowed:
		return "not_allowed"
	case KindFs:
		return "fs_error"
	case KindCache:
		return "cache_error"
	case KindThumb:
		return "thumb_error"
	default:
		return "unknown"
	}
}

// Error 描述某次操作的失败原因，Err 保留底层错误。
type Error struct {
	Kind Kind
	Op   string
	Path pathguard.Path
	Err  error
}

// 仅携带 Kind 的哨兵值，配合 errors.Is 判断错误类别。
var (
	ErrNotAllowed = &Error{Kind: KindNotAllowed}
	ErrFs         = &Error{Kind: KindFs}
	ErrCache      = &Error{Kind: KindCache}
	ErrThumb      = &Error{Kind: KindThumb}

	errUnsupportedSource = errors.New("unsupported image format")
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让任意同类 Error 匹配对应的哨兵值。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf 返回错误链中最外层 Error 的类别，非 Error 返回 0。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, p pathguard.Path, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: p, Err: err}
}

func notAllowed(op string, p pathguard.Path, reason string) *Error {
	return newError(KindNotAllowed, op, p, errors.New(reason))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// wrapThumbErr 将缩略图存储的失败归类：解码/编码/源缺失为 ThumbError，其余为 FsError。
func wrapThumbErr(op string, p pathguard.Path, err error) error {
	if err == nil || isContextErr(err) {
		return err
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, thumbnail.ErrSourceMissing),
		errors.Is(err, thumbnail.ErrDecode),
		errors.Is(err, thumbnail.ErrEncode):
		return newError(KindThumb, op, p, err)
	default:
		return newError(KindFs, op, p, fmt.Errorf("derivative io: %w", err))
	}
}
