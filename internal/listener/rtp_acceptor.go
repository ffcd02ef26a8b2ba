// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package listener

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/internal/session"
	"github.com/rapidaai/voicebridge/internal/transport/rtpmedia"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// switchReadTimeout is the soft per-read timeout of §5: on expiry the
// Session does not terminate, it just loops back to check ctx and keeps
// emitting keep-alive silence via the pacer.
const switchReadTimeout = 10 * time.Second

// rtpTransport adapts one call's pre-bound UDP socket and negotiated
// remote address to Session's FrontendTransport interface.
type rtpTransport struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	sender *rtpmedia.Sender
	recv   *rtpmedia.Receiver
	port   int
	pool   rtpmedia.PortAllocator
}

func (t *rtpTransport) ReadFrame(ctx context.Context) (frame.Frame, error) {
	buf := make([]byte, 2048)
	_ = t.conn.SetReadDeadline(time.Now().Add(switchReadTimeout))
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() && ctx.Err() == nil {
			return frame.Frame{}, session.ErrSoftTimeout
		}
		return frame.Frame{}, err
	}
	return t.recv.Unmarshal(buf[:n])
}

func (t *rtpTransport) WriteFrame(f frame.Frame) error {
	raw, err := t.sender.Marshal(f.Payload)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(raw, t.remote)
	return err
}

func (t *rtpTransport) Close() error {
	err := t.conn.Close()
	t.pool.Release(t.port)
	return err
}

// RTPAcceptor provisions the switch-side media channel via REST and then
// spawns a Session bound to a pre-allocated UDP socket (§4.3, §4.8).
type RTPAcceptor struct {
	logger      commons.Logger
	pool        rtpmedia.PortAllocator
	channelCli  *rtpmedia.ChannelClient
	bindHost    string
	toolHandler session.ToolHandler
}

func NewRTPAcceptor(logger commons.Logger, pool rtpmedia.PortAllocator, channelCli *rtpmedia.ChannelClient, bindHost string, toolHandler session.ToolHandler) *RTPAcceptor {
	return &RTPAcceptor{logger: logger, pool: pool, channelCli: channelCli, bindHost: bindHost, toolHandler: toolHandler}
}

// Accept provisions one call's RTP media pair: allocate a local port, bind
// it, ask the switch to create the external-media channel, and return a
// FrontendTransport ready for session.New. The channel reply is
// authoritative and is never cached across calls (§4.3).
func (a *RTPAcceptor) Accept(callID string) (*rtpTransport, error) {
	port, err := a.pool.Allocate()
	if err != nil {
		return nil, fmt.Errorf("rtp acceptor: %w", err)
	}

	laddr := &net.UDPAddr{IP: net.ParseIP(a.bindHost), Port: port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		a.pool.Release(port)
		return nil, fmt.Errorf("rtp acceptor: bind %v: %w", laddr, err)
	}

	channel, err := a.channelCli.CreateChannel(callID, port)
	if err != nil {
		_ = conn.Close()
		a.pool.Release(port)
		return nil, fmt.Errorf("rtp acceptor: provision channel: %w", err)
	}

	remote := &net.UDPAddr{IP: net.ParseIP(channel.Host), Port: channel.Port}
	return &rtpTransport{
		conn:   conn,
		remote: remote,
		sender: rtpmedia.NewSender(),
		recv:   rtpmedia.NewReceiver(),
		port:   port,
		pool:   a.pool,
	}, nil
}
