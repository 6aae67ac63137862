package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 10*time.Second, cfg.SchoolAPI.Timeout)
	assert.Equal(t, 0.9, cfg.Wizard.NearCapacityRatio)
	assert.True(t, cfg.Wizard.RefreshBaseBeforeCommit)
	assert.Equal(t, 2*time.Hour, cfg.Wizard.SessionTTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SCHOOL_API_BASE_URL", "https://school.example.com/api/")
	v.Set("WIZARD_NEAR_CAPACITY_RATIO", 1.5)
	v.Set("WIZARD_SESSION_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg := fromViper(v)
	assert.Equal(t, "https://school.example.com/api", cfg.SchoolAPI.BaseURL)
	assert.Equal(t, 0.9, cfg.Wizard.NearCapacityRatio)
	assert.Equal(t, 2*time.Hour, cfg.Wizard.SessionTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}
