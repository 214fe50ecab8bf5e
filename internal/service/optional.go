package service

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Optional 三态字段:未提供、显式 null、提供了值
// JSON 中缺省为未提供,null 表示清空该字段
type Optional[T any] struct {
	value T
	set   bool
	null  bool
}

// Some 构造已提供的值
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None 构造未提供的值
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Null 构造显式清空
func Null[T any]() Optional[T] {
	return Optional[T]{null: true}
}

// Get 返回值与是否提供了值,显式 null 返回 false
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet 是否提供了值
func (o Optional[T]) IsSet() bool {
	return o.set
}

// IsNull 是否显式置空
func (o Optional[T]) IsNull() bool {
	return o.null
}

// OrElse 未提供时返回默认值
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Ptr 未提供时返回 nil
func (o Optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// UnmarshalJSON 实现 json.Unmarshaler
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalJSON 实现 json.Marshaler,未提供与 null 都输出 null
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
