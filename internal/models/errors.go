package models

import (
	"errors"
	"fmt"
)

// 硬错误：直接返回给调用方
var (
	ErrDependentNotFound = errors.New("dependent not found")
	ErrCaseNotFound      = errors.New("emergency case not found")
	ErrInvalidTransition = errors.New("invalid case transition")
	ErrInvalidPayload    = errors.New("invalid reading payload")
)

// ErrCaseAlreadyClosed 对已 RESOLVED 的案例操作；errors.Is(err, ErrInvalidTransition) 同样成立
var ErrCaseAlreadyClosed = fmt.Errorf("%w: case already closed", ErrInvalidTransition)

// 软错误：记录并计数，不影响数据写入
var (
	ErrRecipientNotFound  = errors.New("no notification recipient for dependent")
	ErrChannelUnavailable = errors.New("notification channel unavailable")
)
