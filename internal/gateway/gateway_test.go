// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceName(t *testing.T) {
	assert.Equal(t, "Studio Display", Device{ID: "a", DisplayName: "Studio Display"}.Name())
	assert.Equal(t, UnknownName, Device{ID: "a"}.Name())
	assert.Equal(t, "Unknown (a)", Device{ID: "a"}.String())
}

func TestFindFirstContains(t *testing.T) {
	devices := []Device{
		{ID: "ipad-1", DisplayName: "iPad"},
		{ID: "ipad-2", DisplayName: "iPad Pro"},
	}

	d, ok := Find(devices, "ipad-2")
	assert.True(t, ok)
	assert.Equal(t, "iPad Pro", d.DisplayName)

	_, ok = Find(devices, "missing")
	assert.False(t, ok)

	_, ok = Find(devices, "")
	assert.False(t, ok, "empty id never matches")

	first, ok := First(devices)
	assert.True(t, ok)
	assert.Equal(t, "ipad-1", first.ID)

	_, ok = First(nil)
	assert.False(t, ok)

	assert.True(t, Contains(devices, "ipad-1"))
	assert.False(t, Contains(nil, "ipad-1"))
}
