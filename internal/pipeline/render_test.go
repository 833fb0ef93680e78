// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/geo"
	"github.com/stretchr/testify/assert"
)

func TestSubstituteTimeFormat(t *testing.T) {
	r := httptest.NewRequest("GET", "/path", nil)
	now := time.Date(2026, 3, 5, 14, 30, 45, 0, time.UTC)

	got := substitute("{Time}", r, "1.2.3.4", admission.Decision{}, now)

	assert.Equal(t, "2026-03-05 14:30:45", got)
}

func TestSubstituteGeoFields(t *testing.T) {
	r := httptest.NewRequest("GET", "/secret", nil)
	decision := admission.Decision{
		Allowed: false,
		Reason:  admission.ReasonGeoDenied,
		Geo: &geo.Info{
			Country: "US",
			Region:  "CA",
			City:    "San Francisco",
		},
	}

	got := substitute("{Country}/{Region}/{City}", r, "1.2.3.4", decision, time.Now())

	assert.Equal(t, "US/CA/San Francisco", got)
}

func TestSubstituteGeoFieldsEmptyWhenNoLookup(t *testing.T) {
	r := httptest.NewRequest("GET", "/secret", nil)

	got := substitute("{Country}/{Region}/{City}", r, "1.2.3.4", admission.Decision{}, time.Now())

	assert.Equal(t, "//", got)
}
