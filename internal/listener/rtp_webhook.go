// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package listener

import (
	"net/http"

	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/session"
)

// RTPWebhook exposes the HTTP endpoint the switch's control plane calls to
// announce a new RTP call, mirroring the ARI StatusCallback/ReceiveCall
// handlers: the switch POSTs channelId, this handler provisions the media
// pair via RTPAcceptor and spawns a Session.
type RTPWebhook struct {
	cfg      *config.Config
	acceptor *RTPAcceptor
	handle   func(callID string, transport session.FrontendTransport)
}

func NewRTPWebhook(cfg *config.Config, acceptor *RTPAcceptor, handle func(callID string, transport session.FrontendTransport)) *RTPWebhook {
	return &RTPWebhook{cfg: cfg, acceptor: acceptor, handle: handle}
}

// ServeHTTP implements http.Handler. The switch is expected to POST
// ?channelId=<id> once it has answered the call and is ready to exchange
// RTP.
func (h *RTPWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	callID := r.URL.Query().Get("channelId")
	if callID == "" {
		http.Error(w, "missing channelId", http.StatusBadRequest)
		return
	}

	transport, err := h.acceptor.Accept(callID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go h.handle(callID, transport)
	w.WriteHeader(http.StatusAccepted)
}
