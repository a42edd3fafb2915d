package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// SlotFields 描述一次缓存决策，coordinator 与后台刷新共用。
func SlotFields(action, slot string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"slot":   slot,
	}
}

// RequestFields 提供路由/槽位/命中状态字段，供 HTTP 访问日志复用。
func RequestFields(requestID, method, path string, status int, cacheStatus string) logrus.Fields {
	fields := logrus.Fields{
		"action":       "request",
		"method":       method,
		"path":         path,
		"status":       status,
		"cache_status": cacheStatus,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
