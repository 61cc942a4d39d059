package history

import "time"

// CleanupInterval is how often SQL stores delete expired entries.
const CleanupInterval = 1 * time.Hour

// RunCleanupLoop runs cleanupFn immediately, then every interval, until stop is closed.
func RunCleanupLoop(stop <-chan struct{}, interval time.Duration, cleanupFn func()) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cleanupFn()

	for {
		select {
		case <-ticker.C:
			cleanupFn()
		case <-stop:
			return
		}
	}
}
