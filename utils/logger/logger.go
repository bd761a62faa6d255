package logger

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

const logFormat = "|%20s|%-100s"

type stringer interface {
	String() string
}

func Init(lvl logrus.Level) {
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		PadLevelText:    true,
		TimestampFormat: "2006/02/01 15:04:05",
	})
}

func objToString(obj any) string {
	if obj == nil {
		return "NIL"
	}

	var objStr string
	switch typedObj := obj.(type) {
	case stringer:
		objStr = typedObj.String()
	case string:
		objStr = typedObj
	default:
		objStr = reflect.TypeOf(obj).Name()
	}
	// The tag column is 20 characters wide.
	if len(objStr) > 20 {
		objStr = objStr[:20]
	}
	return objStr
}

func Trace(object any, message string) {
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.StandardLogger().Logf(logrus.TraceLevel, logFormat, objToString(object), message)
	}
}

func Tracef(object any, format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.StandardLogger().Logf(logrus.TraceLevel, logFormat, objToString(object), fmt.Sprintf(format, args...))
	}
}

func Debug(object any, message string) {
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.StandardLogger().Logf(logrus.DebugLevel, logFormat, objToString(object), message)
	}
}

func Debugf(object any, format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.StandardLogger().Logf(logrus.DebugLevel, logFormat, objToString(object), fmt.Sprintf(format, args...))
	}
}

func Info(object any, message string) {
	if logrus.IsLevelEnabled(logrus.InfoLevel) {
		logrus.StandardLogger().Logf(logrus.InfoLevel, logFormat, objToString(object), message)
	}
}

func Infof(object any, format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.InfoLevel) {
		logrus.StandardLogger().Logf(logrus.InfoLevel, logFormat, objToString(object), fmt.Sprintf(format, args...))
	}
}

func Warning(object any, message string) {
	if logrus.IsLevelEnabled(logrus.WarnLevel) {
		logrus.StandardLogger().Logf(logrus.WarnLevel, logFormat, objToString(object), message)
	}
}

func Warningf(object any, format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.WarnLevel) {
		logrus.StandardLogger().Logf(logrus.WarnLevel, logFormat, objToString(object), fmt.Sprintf(format, args...))
	}
}

func Error(object any, message string) {
	if logrus.IsLevelEnabled(logrus.ErrorLevel) {
		logrus.StandardLogger().Logf(logrus.ErrorLevel, logFormat, objToString(object), message)
	}
}

func Errorf(object any, format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.ErrorLevel) {
		logrus.StandardLogger().Logf(logrus.ErrorLevel, logFormat, objToString(object), fmt.Sprintf(format, args...))
	}
}

func Fatal(object any, message string) {
	logrus.Fatalf(logFormat, objToString(object), message)
}

func Fatalf(object any, format string, args ...any) {
	logrus.Fatalf(logFormat, objToString(object), fmt.Sprintf(format, args...))
}
