package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// Validate 先做结构体标签校验，再做标签无法表达的语义校验。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if err := validate.Struct(c.Global); err != nil {
		return formatValidationError(err)
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError(globalField("LogLevel"), fmt.Sprintf("无法识别的日志级别 %q", g.LogLevel))
	}
	if strings.ContainsRune(g.IdentityHeader, ' ') {
		return newFieldError(globalField("IdentityHeader"), "不允许包含空格")
	}
	for _, size := range g.WarmupSizes {
		if size > g.MaxThumbnailSize {
			return newFieldError(globalField("WarmupSizes"), fmt.Sprintf("%d 超过 MaxThumbnailSize %d", size, g.MaxThumbnailSize))
		}
	}
	return nil
}

// formatValidationError 只返回第一条标签校验失败，转换为 FieldError。
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		reason := fmt.Sprintf("校验失败 (%s", e.Tag())
		if e.Param() != "" {
			reason += "=" + e.Param()
		}
		reason += fmt.Sprintf(")，当前值 %v", e.Value())
		return newFieldError(globalField(e.StructField()), reason)
	}
	return err
}
