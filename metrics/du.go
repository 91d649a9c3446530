package metrics

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/meltwater/hbase-scripts/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// StartDiskUsageMonitor sets the disk usage of path (a file or a directory)
// on s at every interval until ctx is done.
func StartDiskUsageMonitor(ctx context.Context, s Setter, path string, interval time.Duration) {
	s.Set(float64(diskUsage(path)))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Set(float64(diskUsage(path)))
		}
	}
}

const statBlockSize = 512

func diskUsage(path string) int64 {
	var totalSize int64
	err := filepath.Walk(path, func(filepath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		// count allocated blocks, not the apparent size of sparse files
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			totalSize += stat.Blocks * statBlockSize
		} else {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		log.Error("failed to get the disk usage of %s: %v", path, err)
	}
	return totalSize
}
