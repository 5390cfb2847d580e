package status

import (
	"log/slog"
	"sync"
)

var (
	globalMu      sync.RWMutex
	globalService Service
)

// InitManager installs service as the target of the package level helpers.
func InitManager(service Service) {
	globalMu.Lock()
	globalService = service
	globalMu.Unlock()
	slog.Debug("Status manager initialized")
}

// GetService returns the global service, creating a default one on first use.
func GetService() Service {
	globalMu.RLock()
	s := globalService
	globalMu.RUnlock()
	if s != nil {
		return s
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalService == nil {
		globalService = NewService()
	}
	return globalService
}

func Info(message string) {
	GetService().Info(message)
}

func Warn(message string) {
	GetService().Warn(message)
}

func Error(message string) {
	GetService().Error(message)
}

func Debug(message string) {
	GetService().Debug(message)
}
