package utils_test

import (
	"strings"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/utils"
	"github.com/stretchr/testify/assert"
)

// TestValidateOrderNo 测试工单号验证
func TestValidateOrderNo(t *testing.T) {
	assert.NoError(t, utils.ValidateOrderNo("WO-2025.001"))
	assert.ErrorIs(t, utils.ValidateOrderNo(" "), utils.ErrEmptyOrderNo)
	assert.ErrorIs(t, utils.ValidateOrderNo("WO 1"), utils.ErrInvalidIDFormat)
	assert.ErrorIs(t, utils.ValidateOrderNo(strings.Repeat("a", 65)), utils.ErrIDTooLong)
}

// TestValidateOperationNo 测试工序号验证
func TestValidateOperationNo(t *testing.T) {
	assert.NoError(t, utils.ValidateOperationNo("0010"))
	assert.ErrorIs(t, utils.ValidateOperationNo(""), utils.ErrEmptyOperationNo)
	assert.ErrorIs(t, utils.ValidateOperationNo("10;drop"), utils.ErrInvalidIDFormat)
}

// TestValidateAssetID 测试设备 ID 验证
func TestValidateAssetID(t *testing.T) {
	assert.NoError(t, utils.ValidateAssetID(1))
	assert.ErrorIs(t, utils.ValidateAssetID(0), utils.ErrInvalidAssetID)
}

// TestValidateWorkplaceName 测试工位名称验证
func TestValidateWorkplaceName(t *testing.T) {
	assert.NoError(t, utils.ValidateWorkplaceName("Laser Cutter 3"))
	assert.ErrorIs(t, utils.ValidateWorkplaceName("<script>alert(1)</script>"), utils.ErrDangerousChars)
	assert.ErrorIs(t, utils.ValidateWorkplaceName("  "), utils.ErrEmptyName)
}

// TestEscapeLike 测试 LIKE 转义
func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `LASER\_1\%`, utils.EscapeLike("LASER_1%"))
}
