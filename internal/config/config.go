// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config loads the bridge's process-wide configuration from the
// environment (§6 of the engine spec). It never touches call state —
// every Session reads its knobs from a single immutable snapshot.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable, process-wide configuration snapshot.
type Config struct {
	AI       AIConfig
	Switch   SwitchConfig
	RTP      RTPConfig
	Jitter   JitterConfig
	DSP      DSPConfig
	Reconnect ReconnectConfig
	VAD      VADConfig
	Observability ObservabilityConfig
}

type AIConfig struct {
	WSURL        string
	APIKey       string
	Voice        string
	Model        string
	SystemPrompt string
}

type SwitchConfig struct {
	ListenHost string
	ListenPort int
	// ControlURL/User/Pass address the switch's control-plane REST API
	// used to provision RTP external-media channels (§4.3).
	ControlURL  string
	ControlUser string
	ControlPass string
}

type RTPConfig struct {
	BindHost    string
	PortStart   int
	PortEnd     int
	WebhookPort int
	// RedisAddr, when non-empty, switches the port allocator to the
	// Redis-backed distributed implementation (multi-instance deployments).
	RedisAddr string
}

type JitterConfig struct {
	BufferMS   int
	KeepaliveMS int
}

type DSPConfig struct {
	VolumeBoost       float64
	PreEmphasisCoeff  float64
	NoiseGateThreshold float64
	TargetRMS         float64
	SendNativeULaw    bool
	// WarmupSilenceMS of silence is sent to the AI immediately after init,
	// before any real switch audio has arrived, so its server-side VAD has
	// a stable noise floor to calibrate against on the first real frame.
	WarmupSilenceMS int
}

type ObservabilityConfig struct {
	EnableMetrics bool
}

type ReconnectConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
}

type VADConfig struct {
	Threshold           float64
	PrefixPaddingMS     int
	SilenceDurationMS   int
}

// Load reads the environment into a Config, applying the defaults documented
// in §6, and fails fast (per §7 "Configuration" error kind) if a mandatory
// value is missing.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("LISTEN_HOST", "0.0.0.0")
	v.SetDefault("LISTEN_PORT", 8090)
	v.SetDefault("RTP_BIND_HOST", "0.0.0.0")
	v.SetDefault("RTP_PORT_START", 40000)
	v.SetDefault("RTP_PORT_END", 40100)
	v.SetDefault("RTP_WEBHOOK_PORT", 8091)
	v.SetDefault("JITTER_BUFFER_MS", 250)
	v.SetDefault("KEEPALIVE_MS", 1000)
	v.SetDefault("VOLUME_BOOST", 2.5)
	v.SetDefault("PRE_EMPHASIS_COEFF", 0.95)
	v.SetDefault("NOISE_GATE_THRESHOLD", 25.0)
	v.SetDefault("TARGET_RMS", 2500.0)
	v.SetDefault("SEND_NATIVE_ULAW", false)
	v.SetDefault("WARMUP_SILENCE_MS", 200)
	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 3)
	v.SetDefault("RECONNECT_BASE_DELAY_S", 1.0)
	v.SetDefault("VAD_THRESHOLD", 0.5)
	v.SetDefault("VAD_PREFIX_PADDING_MS", 300)
	v.SetDefault("VAD_SILENCE_DURATION_MS", 500)

	apiKey := v.GetString("API_KEY")
	wsURL := v.GetString("AI_WS_URL")
	if apiKey == "" || wsURL == "" {
		return nil, fmt.Errorf("configuration: AI_WS_URL and API_KEY are required")
	}

	jitterMS := v.GetInt("JITTER_BUFFER_MS")
	if jitterMS < 200 {
		jitterMS = 200
	}
	if jitterMS > 300 {
		jitterMS = 300
	}

	keepaliveMS := v.GetInt("KEEPALIVE_MS")
	if keepaliveMS <= 0 || keepaliveMS > 1000 {
		keepaliveMS = 1000
	}

	cfg := &Config{
		AI: AIConfig{
			WSURL:        wsURL,
			APIKey:       apiKey,
			Voice:        v.GetString("AI_VOICE"),
			Model:        v.GetString("AI_MODEL"),
			SystemPrompt: v.GetString("SYSTEM_PROMPT"),
		},
		Switch: SwitchConfig{
			ListenHost:  v.GetString("LISTEN_HOST"),
			ListenPort:  v.GetInt("LISTEN_PORT"),
			ControlURL:  v.GetString("SWITCH_CONTROL_URL"),
			ControlUser: v.GetString("SWITCH_CONTROL_USER"),
			ControlPass: v.GetString("SWITCH_CONTROL_PASS"),
		},
		RTP: RTPConfig{
			BindHost:    v.GetString("RTP_BIND_HOST"),
			PortStart:   v.GetInt("RTP_PORT_START"),
			PortEnd:     v.GetInt("RTP_PORT_END"),
			WebhookPort: v.GetInt("RTP_WEBHOOK_PORT"),
			RedisAddr:   v.GetString("RTP_REDIS_ADDR"),
		},
		Jitter: JitterConfig{
			BufferMS:    jitterMS,
			KeepaliveMS: keepaliveMS,
		},
		DSP: DSPConfig{
			VolumeBoost:        v.GetFloat64("VOLUME_BOOST"),
			PreEmphasisCoeff:   v.GetFloat64("PRE_EMPHASIS_COEFF"),
			NoiseGateThreshold: v.GetFloat64("NOISE_GATE_THRESHOLD"),
			TargetRMS:          v.GetFloat64("TARGET_RMS"),
			SendNativeULaw:     v.GetBool("SEND_NATIVE_ULAW"),
			WarmupSilenceMS:    v.GetInt("WARMUP_SILENCE_MS"),
		},
		Observability: ObservabilityConfig{
			EnableMetrics: v.GetBool("ENABLE_METRICS"),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: v.GetInt("MAX_RECONNECT_ATTEMPTS"),
			BaseDelay:   time.Duration(v.GetFloat64("RECONNECT_BASE_DELAY_S") * float64(time.Second)),
		},
		VAD: VADConfig{
			Threshold:         v.GetFloat64("VAD_THRESHOLD"),
			PrefixPaddingMS:   v.GetInt("VAD_PREFIX_PADDING_MS"),
			SilenceDurationMS: v.GetInt("VAD_SILENCE_DURATION_MS"),
		},
	}
	return cfg, nil
}
