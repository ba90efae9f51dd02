package handlers

import (
	"time"

	"crm-backend/config"
)

var (
	sessionTTL     = 7 * 24 * time.Hour
	presenceWindow = 5 * time.Minute
	secureCookies  = false

	embedTokenSecret string
	embedTokenTTL    = 10 * time.Minute
)

// Configure binds handler behavior to the loaded configuration
func Configure(cfg *config.Config) {
	sessionTTL = cfg.SessionTTL
	presenceWindow = cfg.PresenceWindow
	secureCookies = cfg.Production
	embedTokenSecret = cfg.EmbedTokenSecret
	embedTokenTTL = cfg.EmbedTokenTTL
}
