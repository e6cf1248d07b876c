package logger

import (
	"github.com/sirupsen/logrus"
)

// Log — общий логгер приложения. Доступен до вызова Init
// с настройками по умолчанию.
var Log = logrus.New()

// Init настраивает уровень и формат логов. В development режиме
// используется текстовый формат, иначе JSON.
func Init(level string, development bool) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if development {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	Log.SetFormatter(&logrus.JSONFormatter{})
}
