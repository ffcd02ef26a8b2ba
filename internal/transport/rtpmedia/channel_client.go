// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package rtpmedia

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MediaChannel is the switch's reply describing where outbound RTP must be
// sent. It is authoritative for exactly one call and must never be cached.
type MediaChannel struct {
	Host string
	Port int
}

// ChannelClient provisions the switch-side external-media channel over the
// switch's control REST API, mirroring the ARI outbound-call pattern: a
// basic-auth POST with query parameters, expecting a JSON body back.
type ChannelClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewChannelClient(baseURL, username, password string) *ChannelClient {
	return &ChannelClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateChannel asks the switch to open an external-media channel bound to
// localPort and returns the remote host/port that will receive our RTP.
func (c *ChannelClient) CreateChannel(callID string, localPort int) (MediaChannel, error) {
	q := url.Values{}
	q.Set("channelId", callID)
	q.Set("external_host", "0.0.0.0:"+strconv.Itoa(localPort))
	q.Set("format", "slin16")
	q.Set("encapsulation", "rtp")

	reqURL := c.baseURL + "/channels/externalMedia?" + q.Encode()
	req, err := http.NewRequest(http.MethodPost, reqURL, nil)
	if err != nil {
		return MediaChannel{}, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return MediaChannel{}, fmt.Errorf("rtpmedia: create channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return MediaChannel{}, fmt.Errorf("rtpmedia: create channel: switch returned %d", resp.StatusCode)
	}

	var body struct {
		ChannelVars struct {
			RemoteHost string `json:"UNICASTRTP_LOCAL_ADDRESS"`
			RemotePort string `json:"UNICASTRTP_LOCAL_PORT"`
		} `json:"channelvars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return MediaChannel{}, fmt.Errorf("rtpmedia: decode channel reply: %w", err)
	}

	port, err := strconv.Atoi(body.ChannelVars.RemotePort)
	if err != nil {
		return MediaChannel{}, fmt.Errorf("rtpmedia: invalid remote port in channel reply: %w", err)
	}

	return MediaChannel{Host: body.ChannelVars.RemoteHost, Port: port}, nil
}
