package kafka

import (
	"context"
	"fmt"
	"net"
	"time"

	"credlife/internal/platform/kafka/producer"
)

// HealthChecker reports whether any configured broker accepts TCP connections.
type HealthChecker struct {
	brokers []string
	timeout time.Duration
}

func NewHealthChecker(brokers string) *HealthChecker {
	return &HealthChecker{brokers: producer.SplitBrokers(brokers), timeout: 5 * time.Second}
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return fmt.Errorf("kafka brokers not configured")
	}
	dialer := net.Dialer{Timeout: h.timeout}
	var lastErr error
	for _, broker := range h.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka brokers reachable: %w", lastErr)
}
