package log

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

// the -a flag of a connection string carries the password
var passwordFlagPattern = regexp.MustCompile(`(^|\s)-a\s+\S+`)

// RedactHook scrubs credentials from every entry before it is written.
type RedactHook struct{}

func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RedactHook) Fire(entry *logrus.Entry) error {
	entry.Message = RedactPassword(entry.Message)
	for key, value := range entry.Data {
		if isSecretKey(key) {
			entry.Data[key] = redacted
			continue
		}
		switch v := value.(type) {
		case string:
			entry.Data[key] = RedactPassword(v)
		case error:
			entry.Data[key] = RedactPassword(v.Error())
		}
	}
	return nil
}

func NewRedactHook() logrus.Hook {
	return &RedactHook{}
}

// RedactPassword hides the value following -a in s.
func RedactPassword(s string) string {
	if !strings.Contains(s, "-a") {
		return s
	}
	return passwordFlagPattern.ReplaceAllString(s, "${1}-a "+redacted)
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") || key == "connection_string"
}
