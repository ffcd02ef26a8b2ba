// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package aiclient is the AI-side transport session: a WebSocket peer
// speaking the schema-light envelope vocabulary of §4.5, generalized from
// the platform's WSRequest/WSResponse executor pattern to the voice
// bridge's own message types.
package aiclient

import "encoding/json"

// MessageType is the envelope's "type" discriminator. Model as a tagged
// variant with an "unknown" arm per §9 Dynamic JSON note.
type MessageType string

const (
	// Outbound (engine -> AI)
	TypeInit          MessageType = "init"
	TypeAudio         MessageType = "audio"
	TypeCancelResponse MessageType = "cancel_response"
	TypeToolResult    MessageType = "tool_result"
	TypeUpdatePhone   MessageType = "update_phone"

	// Inbound (AI -> engine)
	TypeSessionReady   MessageType = "session_ready"
	TypeSessionResumed MessageType = "session_resumed"
	TypeAudioDelta     MessageType = "audio_delta"
	TypeAddressTTS     MessageType = "address_tts"
	TypeTranscript     MessageType = "transcript"
	TypeUserSpeaking   MessageType = "user_speaking"
	TypeToolCall       MessageType = "tool_call"
	TypeSessionHandoff MessageType = "session_handoff"
	TypeCallEnded      MessageType = "call_ended"
	TypeError          MessageType = "error"
)

// Envelope is the wire shape for every message in both directions. Data
// carries a type-specific payload; outbound callers set it directly,
// inbound callers re-unmarshal Data once Type has been switched on.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// InitData announces a call to the AI, optionally resuming a prior session.
type InitData struct {
	CallID       string `json:"call_id"`
	Phone        string `json:"phone,omitempty"`
	Name         string `json:"name,omitempty"`
	Resume       bool   `json:"resume,omitempty"`
	ResumeToken  string `json:"resume_token,omitempty"`
	Voice        string `json:"voice,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	VADThreshold float64 `json:"vad_threshold,omitempty"`
	VADPrefixPaddingMS int `json:"vad_prefix_padding_ms,omitempty"`
	VADSilenceDurationMS int `json:"vad_silence_duration_ms,omitempty"`
}

// UpdatePhoneData carries caller identity that arrived after init.
type UpdatePhoneData struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// AudioData is the JSON+base64 audio envelope, used when the binary-frame
// toggle is off. Both encodings carry byte-identical PCM payload.
type AudioData struct {
	Audio string `json:"audio"`
}

// ToolResultData replies to a tool_call with the handler's JSON result.
type ToolResultData struct {
	CallID string          `json:"call_id"`
	Result json.RawMessage `json:"result"`
}

// AudioDeltaData is the outbound-audio envelope from the AI.
type AudioDeltaData struct {
	Delta string `json:"delta"`
}

// TranscriptData is informational role+text from the AI.
type TranscriptData struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UserSpeakingData marks a VAD speech-start/end edge.
type UserSpeakingData struct {
	Speaking bool `json:"speaking"`
}

// ToolCallData is an AI-initiated tool invocation, opaque to the engine
// beyond the three well-known names in §4.5.
type ToolCallData struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// SessionHandoffData carries the new session token to reconnect with.
type SessionHandoffData struct {
	Token string `json:"token"`
}

// ErrorData is the AI's error envelope.
type ErrorData struct {
	Message  string `json:"message"`
	Retrying bool   `json:"retrying,omitempty"`
}

const (
	ToolEndCall           = "end_call"
	ToolTransferToOperator = "transfer_to_operator"
	ToolBookPrefix        = "book_"
)
