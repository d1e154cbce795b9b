package main

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/wb-go/wbf/config"
)

func envString(cfg *config.Config, key, fallback string) string {
	if v := strings.TrimSpace(cfg.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(cfg *config.Config, key string, fallback int) int {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func envDuration(cfg *config.Config, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}

func envBool(cfg *config.Config, key string, fallback bool) bool {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}
