// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package aiclient

import (
	"encoding/json"
	"testing"

	"github.com/rapidaai/voicebridge/pkg/commons"
	"github.com/stretchr/testify/assert"
)

type fakeHandler struct {
	ready        bool
	resumed      bool
	audioDelta   []byte
	addressTTS   []byte
	transcript   string
	speaking     bool
	toolCallName string
	handoffToken string
	ended        bool
	errMsg       string
}

func (f *fakeHandler) OnSessionReady(resumed bool)   { f.ready = true; f.resumed = resumed }
func (f *fakeHandler) OnAudioDelta(pcm []byte)        { f.audioDelta = pcm }
func (f *fakeHandler) OnAddressTTS(pcm []byte)        { f.addressTTS = pcm }
func (f *fakeHandler) OnTranscript(role, text string) { f.transcript = text }
func (f *fakeHandler) OnUserSpeaking(speaking bool)    { f.speaking = speaking }
func (f *fakeHandler) OnToolCall(callID, name string, arguments json.RawMessage) {
	f.toolCallName = name
}
func (f *fakeHandler) OnSessionHandoff(token string) { f.handoffToken = token }
func (f *fakeHandler) OnCallEnded()                  { f.ended = true }
func (f *fakeHandler) OnError(message string, retrying bool) { f.errMsg = message }

func TestDispatchKnownTypes(t *testing.T) {
	c := &Client{logger: commons.NewTestLogger()}
	h := &fakeHandler{}

	c.dispatch(Envelope{Type: TypeSessionReady}, h)
	assert.True(t, h.ready)
	assert.False(t, h.resumed)

	c.dispatch(Envelope{Type: TypeSessionResumed}, h)
	assert.True(t, h.resumed)

	data, _ := json.Marshal(AudioDeltaData{Delta: "AAEC"})
	c.dispatch(Envelope{Type: TypeAudioDelta, Data: data}, h)
	assert.Equal(t, []byte{0x00, 0x01, 0x02}, h.audioDelta)

	data, _ = json.Marshal(ToolCallData{CallID: "1", Name: "end_call"})
	c.dispatch(Envelope{Type: TypeToolCall, Data: data}, h)
	assert.Equal(t, "end_call", h.toolCallName)

	c.dispatch(Envelope{Type: TypeCallEnded}, h)
	assert.True(t, h.ended)
}

func TestDispatchUnknownTypeDropsSilently(t *testing.T) {
	c := &Client{logger: commons.NewTestLogger()}
	h := &fakeHandler{}
	c.dispatch(Envelope{Type: "something_new"}, h)
	assert.False(t, h.ready)
	assert.Empty(t, h.errMsg)
}
