package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// JSONData 以原始 JSON 形式存储与输出的字段
type JSONData []byte

// Value 实现 driver.Valuer
func (j JSONData) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan 实现 sql.Scanner,兼容驱动返回 string 或 []byte
func (j *JSONData) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONData(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	return nil
}

// MarshalJSON 原样输出
func (j JSONData) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON 原样保存
func (j *JSONData) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("model.JSONData: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}
