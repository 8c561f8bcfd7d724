package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevel(t *testing.T) {
	logger := New("debug", "development")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewBadLevelDefaultsToInfo(t *testing.T) {
	logger := New("shout", "development")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewProductionUsesJSON(t *testing.T) {
	logger := New("info", "production")
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
