package groups

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupNotFound is returned for an unknown group id.
	ErrGroupNotFound = errors.New("provider group not found")
	// ErrBuiltinGroup is returned when deleting a group that is not user-defined.
	ErrBuiltinGroup = errors.New("built-in provider groups cannot be deleted")
	// ErrModelNotFound is returned when no group lists the model id.
	ErrModelNotFound = errors.New("model not found in any provider group")
	// ErrNoActiveModel is returned when nothing is selected.
	ErrNoActiveModel = errors.New("no active model selected")
)

// ValidationError 缺少必填配置，在任何 I/O 之前返回
// ValidationError reports a missing required field. It is returned before any I/O.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid provider group config: %s is required", e.Field)
}

// CatalogFetchError 创建分组时目录拉取失败或为空
// CatalogFetchError wraps a failed or empty catalog fetch during creation.
type CatalogFetchError struct {
	Err error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("fetch model catalog: %v", e.Err)
}

func (e *CatalogFetchError) Unwrap() error { return e.Err }

// SyncError 目录同步失败；原有模型保持不变
// SyncError reports a failed catalog re-sync. The group's existing model
// set is left untouched.
type SyncError struct {
	GroupID string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync catalog for group %s: %v", e.GroupID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
