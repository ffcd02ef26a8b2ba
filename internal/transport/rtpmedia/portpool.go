// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package rtpmedia implements the switch frontend's RTP/UDP dialect: RFC
// 3550 packetization, even-port allocation, and the REST client used to
// provision the switch-side media channel.
package rtpmedia

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voicebridge/pkg/commons"
)

// PortAllocator reserves and releases the even-numbered UDP ports the RTP
// dialect binds one pair (RTP/RTCP) per call onto. The default
// implementation is a single process-local, lock-protected pool that hands
// out any free port, in no defined order (it does not cycle round-robin
// through the range); RedisPortAllocator is the multi-instance alternative.
type PortAllocator interface {
	Init(ctx context.Context) error
	Allocate() (int, error)
	Release(port int)
	InUse() (int, error)
}

// LocalPortAllocator is the default, single-process allocator: a
// lock-protected set of even ports in [start, end).
type LocalPortAllocator struct {
	mu        sync.Mutex
	start     int
	end       int
	available map[int]struct{}
	inUse     map[int]struct{}
}

func NewLocalPortAllocator(start, end int) *LocalPortAllocator {
	return &LocalPortAllocator{start: start, end: end}
}

func (a *LocalPortAllocator) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.start
	if start%2 != 0 {
		start++
	}
	a.available = make(map[int]struct{})
	a.inUse = make(map[int]struct{})
	for p := start; p < a.end; p += 2 {
		a.available[p] = struct{}{}
	}
	if len(a.available) == 0 {
		return fmt.Errorf("rtpmedia: no valid ports in range %d-%d", a.start, a.end)
	}
	return nil
}

func (a *LocalPortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for p := range a.available {
		delete(a.available, p)
		a.inUse[p] = struct{}{}
		return p, nil
	}
	return 0, fmt.Errorf("rtpmedia: no ports available in range %d-%d (%d in use)", a.start, a.end, len(a.inUse))
}

func (a *LocalPortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.inUse[port]; !ok {
		return
	}
	delete(a.inUse, port)
	a.available[port] = struct{}{}
}

func (a *LocalPortAllocator) InUse() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse), nil
}

// RedisPortAllocator is the distributed variant for multi-instance
// deployments, adapted from the platform's session-layer RTP port pool:
// an atomic SPOP/SADD pair keeps allocation race-free across processes,
// and a per-instance tracking set lets a restarted instance reclaim ports
// orphaned by its own crash.
type RedisPortAllocator struct {
	client     *redis.Client
	logger     commons.Logger
	portStart  int
	portEnd    int
	instanceID string
}

const (
	rtpAvailableKey    = "{rtp:ports}:available"
	rtpAllocatedPrefix = "{rtp:ports}:allocated:"
	rtpAllocatedTTL    = 10 * time.Minute
)

func NewRedisPortAllocator(client *redis.Client, logger commons.Logger, portStart, portEnd int) *RedisPortAllocator {
	hostname, _ := os.Hostname()
	return &RedisPortAllocator{
		client:     client,
		logger:     logger,
		portStart:  portStart,
		portEnd:    portEnd,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

var initLuaScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call('EXISTS', key) == 0 then
		for i = 1, #ARGV do
			redis.call('SADD', key, ARGV[i])
		end
		return #ARGV
	end
	return 0
`)

func (a *RedisPortAllocator) Init(ctx context.Context) error {
	start := a.portStart
	if start%2 != 0 {
		start++
	}
	ports := make([]interface{}, 0, (a.portEnd-start)/2)
	for p := start; p < a.portEnd; p += 2 {
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return fmt.Errorf("rtpmedia: no valid ports in range %d-%d", a.portStart, a.portEnd)
	}

	added, err := initLuaScript.Run(ctx, a.client, []string{rtpAvailableKey}, ports...).Int()
	if err != nil {
		return fmt.Errorf("rtpmedia: init port pool: %w", err)
	}
	if added > 0 {
		a.logger.Infow("initialized rtp port pool", "ports_added", added)
	}
	a.reclaimCrashedPorts(ctx)
	return nil
}

var allocateLuaScript = redis.NewScript(`
	local port = redis.call('SPOP', KEYS[1])
	if port == false then
		return -1
	end
	redis.call('SADD', KEYS[2], port)
	return port
`)

func (a *RedisPortAllocator) Allocate() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instanceKey := rtpAllocatedPrefix + a.instanceID
	result, err := allocateLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}).Int()
	if err != nil {
		return 0, fmt.Errorf("rtpmedia: allocate port: %w", err)
	}
	if result == -1 {
		inUse, _ := a.InUse()
		return 0, fmt.Errorf("rtpmedia: no ports available in range %d-%d (%d in use)", a.portStart, a.portEnd, inUse)
	}
	a.client.Expire(ctx, instanceKey, rtpAllocatedTTL)
	return result, nil
}

var releaseLuaScript = redis.NewScript(`
	redis.call('SREM', KEYS[2], ARGV[1])
	redis.call('SADD', KEYS[1], ARGV[1])
	return 1
`)

func (a *RedisPortAllocator) Release(port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instanceKey := rtpAllocatedPrefix + a.instanceID
	if _, err := releaseLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}, port).Result(); err != nil {
		a.logger.Errorw("release rtp port", "port", port, "error", err)
	}
}

func (a *RedisPortAllocator) InUse() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := a.portStart
	if start%2 != 0 {
		start++
	}
	total := (a.portEnd - start) / 2
	available, err := a.client.SCard(ctx, rtpAvailableKey).Result()
	if err != nil {
		return 0, fmt.Errorf("rtpmedia: count available ports: %w", err)
	}
	return total - int(available), nil
}

func (a *RedisPortAllocator) reclaimCrashedPorts(ctx context.Context) {
	instanceKey := rtpAllocatedPrefix + a.instanceID
	ports, err := a.client.SMembers(ctx, instanceKey).Result()
	if err != nil || len(ports) == 0 {
		return
	}
	for _, s := range ports {
		p, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		releaseLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}, p)
	}
	a.logger.Warnw("reclaimed crashed instance ports", "instance", a.instanceID, "count", len(ports))
}
