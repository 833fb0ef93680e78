// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	b := New()
	var gotA, gotB RequestStarted
	b.OnRequestStarted(func(ev RequestStarted) { gotA = ev })
	b.OnRequestStarted(func(ev RequestStarted) { gotB = ev })

	ev := RequestStarted{RequestID: "r1", ClusterID: "c1", Method: "GET", Path: "/", ClientIP: "1.2.3.4", At: time.Unix(0, 0)}
	b.PublishRequestStarted(ev)

	assert.Equal(t, ev, gotA)
	assert.Equal(t, ev, gotB)
}

func TestBusRequestCompletedDeliversToItsOwnSubscribersOnly(t *testing.T) {
	b := New()
	var startedCalls, completedCalls int
	b.OnRequestStarted(func(RequestStarted) { startedCalls++ })
	b.OnRequestCompleted(func(RequestCompleted) { completedCalls++ })

	b.PublishRequestCompleted(RequestCompleted{RequestID: "r1", Status: "forwarded", Code: 200})

	assert.Equal(t, 0, startedCalls)
	assert.Equal(t, 1, completedCalls)
}

func TestBusHealthChangedFanOut(t *testing.T) {
	b := New()
	var seen []HealthChanged
	b.OnHealthChanged(func(ev HealthChanged) { seen = append(seen, ev) })

	b.PublishHealthChanged(HealthChanged{ClusterID: "c1", Address: "10.0.0.1:8080", Status: "Healthy"})
	b.PublishHealthChanged(HealthChanged{ClusterID: "c1", Address: "10.0.0.2:8080", Status: "Unhealthy"})

	assert.Len(t, seen, 2)
	assert.Equal(t, "Healthy", seen[0].Status)
	assert.Equal(t, "Unhealthy", seen[1].Status)
}

func TestNoSubscribersIsANoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.PublishRequestStarted(RequestStarted{})
		b.PublishRequestCompleted(RequestCompleted{})
		b.PublishHealthChanged(HealthChanged{})
	})
}
