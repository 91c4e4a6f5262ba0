package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// PhotoFields 提供列表/缩略图日志共用的路径、身份与尺寸字段；identity 为空或 size 为 0 时省略。
func PhotoFields(action, path, identity string, size int) logrus.Fields {
	fields := logrus.Fields{
		"action": action,
		"path":   path,
	}
	if identity != "" {
		fields["identity"] = identity
	}
	if size > 0 {
		fields["size"] = size
	}
	return fields
}

// RequestFields 提供请求 ID、路由与响应状态字段，供 HTTP 访问日志复用。
func RequestFields(requestID, method, route string, status int, identity string) logrus.Fields {
	return logrus.Fields{
		"action":     "http_request",
		"request_id": requestID,
		"method":     method,
		"route":      route,
		"status":     status,
		"identity":   identity,
	}
}
