// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMigrations(t *testing.T) {
	files, err := Ordered()
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "001_demo_runs.sql", files[0].Name)
	assert.Equal(t, "002_demo_runs_outcome_check.sql", files[1].Name)
	assert.True(t, strings.Contains(files[0].SQL, "CREATE TABLE IF NOT EXISTS demo_runs"))
}
