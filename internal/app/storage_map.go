package app

import (
	"baubot/internal/config"
	"baubot/internal/storage"
)

func mapStorageConfig(s config.Settings) storage.Config {
	driver := s.StorageDriver
	if driver == "" {
		driver = "memory"
	}
	sc := storage.Config{Driver: driver, Path: s.StoragePath}
	if driver == "sqlite" || driver == "sqlite3" {
		sc.BusyTimeout = s.BusyTimeout
	}
	return sc
}
