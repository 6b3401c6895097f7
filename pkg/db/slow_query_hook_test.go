package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryOperation(t *testing.T) {
	assert.Equal(t, "select", queryOperation("\n\tSELECT id FROM sites"))
	assert.Equal(t, "update", queryOperation("update site_milestones set status = $1"))
	assert.Equal(t, "unknown", queryOperation("   "))
}
