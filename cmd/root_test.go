package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{
		"serve", "migrate", "import", "import-stores", "import-forecasts",
		"refresh", "signals", "today", "plan", "reliability",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "custard-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	monitor := serveCmd.Flags().Lookup("monitor")
	require.NotNil(t, monitor)
	assert.Equal(t, "true", monitor.DefValue)
}

func TestImportCommands_RequireInput(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
	}{
		{"import", "csv"},
		{"import-stores", "csv"},
		{"import-forecasts", "input"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, []string{"true"}, f.Annotations["cobra_annotation_bash_completion_one_required_flag"])
		})
	}
}

func TestPlanValues_MapsFlags(t *testing.T) {
	planStores = "mt-horeb,verona"
	planLocation = "43.0,-89.5"
	planSort = "detour"
	planEstimated = true
	planTomorrow = false
	t.Cleanup(func() {
		planStores, planLocation, planSort = "", "", "match"
		planEstimated = false
	})

	v := planValues()
	assert.Equal(t, "mt-horeb,verona", v.Get("stores"))
	assert.Equal(t, "43.0,-89.5", v.Get("location"))
	assert.Equal(t, "detour", v.Get("sort"))
	assert.Equal(t, "true", v.Get("estimated"))
	assert.Equal(t, "false", v.Get("tomorrow"))
}

func TestOptionalDate(t *testing.T) {
	d, err := optionalDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = optionalDate("2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-06-10", d.Format("2006-01-02"))

	_, err = optionalDate("June 10")
	assert.Error(t, err)
}
