package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/citytransit/opsengine/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := newLogger(&config.Config{LogLevel: tt.level}, "opsengine")
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNewAlertPublisher_KafkaDisabled(t *testing.T) {
	publisher := newAlertPublisher(&config.Config{}, zerolog.Nop(), nil)
	assert.NotNil(t, publisher)
}
