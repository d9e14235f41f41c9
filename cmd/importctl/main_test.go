package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

const fleetCSV = "Unit #,Make,Model,Plate\n" +
	"T-1,Volvo,VNL,XYZ1\n" +
	"T-2,Kenworth,T680,XYZ2\n" +
	",Mack,Anthem,XYZ4\n"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--no-env-file", "--advisor=none"))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestEntitiesCmd(t *testing.T) {
	out, err := runCLI(t, "entities")
	require.NoError(t, err)

	infos := decodeOutput[[]core.EntityInfo](t, out)
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	assert.Contains(t, keys, "trucks")
	assert.Contains(t, keys, "loads")
}

func TestFieldsCmd(t *testing.T) {
	out, err := runCLI(t, "fields", "trucks")
	require.NoError(t, err)

	fields := decodeOutput[[]fieldOutput](t, out)
	require.NotEmpty(t, fields)
	assert.Equal(t, "truckNumber", fields[0].Name)
	assert.True(t, fields[0].Required)

	_, err = runCLI(t, "fields", "spaceships")
	assert.ErrorIs(t, err, core.ErrUnknownEntity)
}

func TestMapCmd(t *testing.T) {
	path := writeFile(t, "fleet.csv", fleetCSV)

	out, err := runCLI(t, "map", "trucks", path, "--set", "Model=")
	require.NoError(t, err)

	view := decodeOutput[core.SessionView](t, out)
	assert.Equal(t, "fleet.csv", view.FileName)
	assert.Equal(t, 3, view.RowCount)
	assert.Equal(t, "truckNumber", view.Mapping["Unit #"])
	assert.Empty(t, view.Mapping["Model"])
	assert.Contains(t, view.Unmapped, "Model")
}

func TestMapCmd_BadAssignment(t *testing.T) {
	path := writeFile(t, "fleet.csv", fleetCSV)

	_, err := runCLI(t, "map", "trucks", path, "--set", "no-equals-sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--set")
}

func TestPreviewCmd_Summary(t *testing.T) {
	path := writeFile(t, "fleet.csv", fleetCSV)

	out, err := runCLI(t, "preview", "trucks", path, "--summary")
	require.NoError(t, err)

	sum := decodeOutput[previewSummary](t, out)
	assert.Equal(t, 3, sum.TotalRows)
	assert.Equal(t, 1, sum.InvalidCount)
	assert.Equal(t, sum.TotalRows, sum.ValidCount+sum.WarningCount+sum.InvalidCount)
}

func TestProfilesCmd_FileBackend(t *testing.T) {
	profiles := filepath.Join(t.TempDir(), "profiles.yaml")
	path := writeFile(t, "vendor.csv", "Unit ID,Maker\nT-9,Volvo\n")

	out, err := runCLI(t, "--profiles-file="+profiles,
		"profiles", "save", "trucks", "Vendor A",
		"--set", "Unit ID=truckNumber", "--set", "Maker=make")
	require.NoError(t, err)
	saved := decodeOutput[map[string]string](t, out)
	require.NotEmpty(t, saved["id"])

	out, err = runCLI(t, "--profiles-file="+profiles, "profiles", "list", "trucks")
	require.NoError(t, err)
	list := decodeOutput[[]core.Profile](t, out)
	require.Len(t, list, 1)
	assert.Equal(t, "Vendor A", list[0].Name)

	out, err = runCLI(t, "--profiles-file="+profiles, "map", "trucks", path, "--profile", "vendor a")
	require.NoError(t, err)
	view := decodeOutput[core.SessionView](t, out)
	assert.Equal(t, "truckNumber", view.Mapping["Unit ID"])
	assert.Equal(t, "make", view.Mapping["Maker"])

	_, err = runCLI(t, "--profiles-file="+profiles, "map", "trucks", path, "--profile", "nobody")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestProfilesSaveCmd_RequiresMapping(t *testing.T) {
	profiles := filepath.Join(t.TempDir(), "profiles.yaml")

	_, err := runCLI(t, "--profiles-file="+profiles, "profiles", "save", "trucks", "Empty")
	assert.ErrorIs(t, err, core.ErrInvalidProfile)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("--set", []string{"Rate = Total=amount", " Plate =licensePlate"}, cutLast)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Rate = Total": "amount", "Plate": "licensePlate"}, got)

	got, err = parseAssignments("--fixed", []string{"notes=a=b"}, strings.Cut)
	require.NoError(t, err)
	assert.Equal(t, "a=b", got["notes"])

	_, err = parseAssignments("--fixed", []string{"=value"}, strings.Cut)
	assert.Error(t, err)
}
