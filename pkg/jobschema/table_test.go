package jobschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedTable(t *testing.T) {
	table, err := Load()
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.Equal(t, "v1", table.Version)

	// The jobs the shortcut operations depend on must exist.
	stirring, ok := table.Lookup(JobStirring)
	require.True(t, ok)
	rpm, ok := stirring.Settings[SettingTargetRPM]
	require.True(t, ok)
	require.NotNil(t, rpm.Min)
	require.NotNil(t, rpm.Max)
	assert.Equal(t, 0.0, *rpm.Min)
	assert.Equal(t, 2000.0, *rpm.Max)

	led, ok := table.Lookup(JobLEDIntensity)
	require.True(t, ok)
	for _, channel := range []string{"A", "B", "C", "D"} {
		spec, ok := led.Settings[channel]
		require.True(t, ok, "channel %s missing from led_intensity schema", channel)
		require.NotNil(t, spec.Min)
		require.NotNil(t, spec.Max)
		assert.Equal(t, 0.0, *spec.Min)
		assert.Equal(t, 100.0, *spec.Max)
	}
}

func TestTableOrderPreserved(t *testing.T) {
	table := MustLoad()

	var names []string
	for _, s := range table.Schemas {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"stirring", "led_intensity", "temperature_automation", "od_reading"}, names)
}

func TestSettingSpecInRange(t *testing.T) {
	min, max := 0.0, 100.0
	spec := SettingSpec{Min: &min, Max: &max}

	tests := []struct {
		v    float64
		want bool
	}{
		{0, true},
		{100, true},
		{50, true},
		{-0.5, false},
		{100.5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, spec.InRange(tt.v), "value %v", tt.v)
	}
}

func TestParseRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no version", "schemas:\n  - name: x\n"},
		{"no schemas", "version: v1\n"},
		{"missing name", "version: v1\nschemas:\n  - description: x\n"},
		{"duplicate name", "version: v1\nschemas:\n  - name: x\n  - name: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
