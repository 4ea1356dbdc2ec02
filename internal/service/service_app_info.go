// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

type appInfoService struct {
	info models.VersionResponse

	logger *logger.Logger
}

// NewAppInfoService serves the build metadata. The version set by the
// linker wins over the configured one; one of them must be present.
func NewAppInfoService(cfg config.App, build models.AppBuildInfo, logger *logger.Logger) (AppInfoService, error) {
	if build.BuildVersion() == "" {
		if cfg.Version == "" {
			return nil, ErrVersionIsNotSpecified
		}
		build = models.NewAppBuildInfo(cfg.Version, build.BuildDate(), build.BuildCommit())
	}

	return &appInfoService{
		info:   build.Response(),
		logger: logger,
	}, nil
}

func (s *appInfoService) GetAppVersion(ctx context.Context) models.VersionResponse {
	return s.info
}
