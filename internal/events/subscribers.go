// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package events

import "github.com/lywaf/lywaf/internal/logging"

// AttachLogSubscriber registers the built-in log subscriber on b: one of
// the two built-in consumers (the other being a metrics subscriber,
// attached separately by internal/metrics). Request-level
// events log at Debug to stay off the hot path at default verbosity;
// health events, one per destination per probe batch, log at Info since
// they're operationally significant.
func AttachLogSubscriber(b *Bus, logger *logging.Logger) {
	if logger == nil {
		return
	}
	b.OnRequestStarted(func(ev RequestStarted) {
		logger.Debug("request started", "request_id", ev.RequestID, "cluster", ev.ClusterID, "method", ev.Method, "path", ev.Path, "client_ip", ev.ClientIP)
	})
	b.OnRequestCompleted(func(ev RequestCompleted) {
		logger.Debug("request completed", "request_id", ev.RequestID, "cluster", ev.ClusterID, "status", ev.Status, "code", ev.Code, "duration", ev.Duration)
	})
	b.OnHealthChanged(func(ev HealthChanged) {
		logger.Info("destination health changed", "cluster", ev.ClusterID, "address", ev.Address, "status", ev.Status)
	})
}
