package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	var c Config
	ApplyDefaults(&c)

	assert.Equal(t, int64(50), c.Loader.MaxFileSizeMB)
	assert.Equal(t, []string{".pdf"}, c.Loader.Extensions)
	assert.Equal(t, 1000, c.Loader.ChunkSize)
	assert.Equal(t, 100, c.Loader.ChunkOverlap)
	assert.NotEmpty(t, c.Kafka.GroupID)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	c := Config{}
	c.Loader.MaxFileSizeMB = 10
	c.Loader.Extensions = []string{".pdf", ".txt"}
	c.Loader.ChunkSize = 500
	c.Loader.ChunkOverlap = 50
	ApplyDefaults(&c)

	assert.Equal(t, int64(10), c.Loader.MaxFileSizeMB)
	assert.Equal(t, []string{".pdf", ".txt"}, c.Loader.Extensions)
	assert.Equal(t, 500, c.Loader.ChunkSize)
	assert.Equal(t, 50, c.Loader.ChunkOverlap)
}

func TestApplyDefaults_InvalidOverlap(t *testing.T) {
	c := Config{}
	c.Loader.ChunkSize = 200
	c.Loader.ChunkOverlap = 300 // overlap 不能大于分块大小
	ApplyDefaults(&c)

	assert.Equal(t, 100, c.Loader.ChunkOverlap)
}
