package wrpc

import "go.uber.org/zap"

// l is silent until SetLogger is called.
var l = zap.NewNop()

// SetLogger replaces the package logger used by clients, transports and servers.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l = logger
}
