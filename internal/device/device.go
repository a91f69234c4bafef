// Package device manages the stable identity of this installation.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"household/internal/storage"
)

// Ensure returns the persisted device id, generating and storing one on
// first use. The id never changes once stored.
func Ensure(ctx context.Context, meta storage.MetaStore) (string, error) {
	id, err := meta.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if strings.TrimSpace(id) != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := meta.SetDeviceID(ctx, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}

	slog.InfoContext(ctx, "Generated device id", "device_id", id)
	return id, nil
}
