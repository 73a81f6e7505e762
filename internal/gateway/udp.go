package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/internal/codec"
)

const (
	// maxDatagram bounds inbound reads. Device frames are far smaller; the
	// limit only guards against garbage.
	maxDatagram = 4096
	// addrTTL is how long a device's return address stays valid without
	// traffic before outbound events to it start failing.
	addrTTL = 2 * time.Minute
	// evictInterval is the sweep cadence for stale addresses.
	evictInterval = 30 * time.Second
)

// ErrDeviceUnknown is returned when sending to a device whose return address
// has not been learned or has gone stale.
var ErrDeviceUnknown = errors.New("gateway: no known address for device")

// FrameSink receives decoded audio frames. The session manager is the
// production implementation.
type FrameSink interface {
	DeliverFrame(frame entities.AudioFrame)
}

// AudioGateway is the UDP data plane. Inbound datagrams are decoded and
// handed to the frame sink; outbound events are encoded and sent to the
// device's last-seen return address.
type AudioGateway struct {
	conn   *net.UDPConn
	frames FrameSink
	logger *zap.Logger

	mu    sync.Mutex
	addrs map[string]deviceAddr

	done chan struct{}
	wg   sync.WaitGroup
}

type deviceAddr struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

// NewAudioGateway binds the UDP socket and starts the read and eviction
// loops.
func NewAudioGateway(bind string, frames FrameSink, logger *zap.Logger) (*AudioGateway, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolve udp bind address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp socket: %w", err)
	}

	g := &AudioGateway{
		conn:   conn,
		frames: frames,
		logger: logger,
		addrs:  make(map[string]deviceAddr),
		done:   make(chan struct{}),
	}
	g.wg.Add(2)
	go g.readLoop()
	go g.evictLoop()

	logger.Info("audio gateway listening", zap.String("addr", conn.LocalAddr().String()))
	return g, nil
}

func (g *AudioGateway) readLoop() {
	defer g.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-g.done:
				return
			default:
				g.logger.Warn("udp read failed", zap.Error(err))
				continue
			}
		}

		packet, err := codec.DecodeAudioPacket(buf[:n])
		if err != nil {
			// Protocol error: drop, never fatal.
			g.logger.Debug("malformed datagram dropped",
				zap.String("remote", remote.String()),
				zap.Error(err))
			continue
		}

		g.remember(packet.DeviceID, remote)
		g.frames.DeliverFrame(packet.Frame("", time.Now()))
	}
}

// remember records the device's return address for outbound events.
func (g *AudioGateway) remember(deviceID string, addr *net.UDPAddr) {
	g.mu.Lock()
	g.addrs[deviceID] = deviceAddr{addr: addr, lastSeen: time.Now()}
	g.mu.Unlock()
}

func (g *AudioGateway) evictLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for id, entry := range g.addrs {
				if now.Sub(entry.lastSeen) > addrTTL {
					delete(g.addrs, id)
					g.logger.Debug("evicted stale device address", zap.String("device_id", id))
				}
			}
			g.mu.Unlock()
		}
	}
}

// Send encodes one event and transmits it to the device. Satisfies the
// session layer's EventSink.
func (g *AudioGateway) Send(deviceID string, ev *codec.Event) error {
	g.mu.Lock()
	entry, ok := g.addrs[deviceID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceUnknown, deviceID)
	}

	data, err := codec.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if _, err := g.conn.WriteToUDP(data, entry.addr); err != nil {
		return fmt.Errorf("send %s event to %s: %w", ev.Type, deviceID, err)
	}
	return nil
}

// KnownDevices reports how many device addresses are currently tracked.
func (g *AudioGateway) KnownDevices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.addrs)
}

// Close stops the loops and releases the socket.
func (g *AudioGateway) Close(ctx context.Context) error {
	close(g.done)
	err := g.conn.Close()

	finished := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
