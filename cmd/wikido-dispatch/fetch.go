package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/wikido/wikido-dispatch/internal/extdist"
)

// fetchExtensions downloads each extension in turn and stops at the first failure.
func fetchExtensions(ctx context.Context, client *extdist.Client, extensions []string, mwVersion, targetDir string, extract bool, logger *zap.Logger) error {
	logger.Info("downloading extensions", zap.String("mw_version", mwVersion), zap.Int("count", len(extensions)))

	for _, ext := range extensions {
		bundle, err := client.FindBundle(ctx, ext, mwVersion)
		if err != nil {
			return err
		}
		path, err := client.Fetch(ctx, bundle, targetDir, extract)
		if err != nil {
			return err
		}
		logger.Info("extension ready", zap.String("extension", ext), zap.String("path", path))
	}
	return nil
}
