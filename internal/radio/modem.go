// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/battnode/pkg/nodelink"
	"github.com/sirupsen/logrus"
)

// SendResultTimeout bounds how long SendManaged waits for SEND_RESULT
const SendResultTimeout = 500 * time.Millisecond

// ErrLinkClosed is returned once the modem link has gone away
var ErrLinkClosed = errors.New("radio: modem link closed")

// Modem is a Transport backed by an external radio modem speaking nodelink
// over a byte stream (UART or WebSocket).
type Modem struct {
	conn   io.ReadWriteCloser
	devEUI uint64
	log    logrus.FieldLogger

	writeMu sync.Mutex
	sendMu  sync.Mutex // one SEND_MANAGED awaiting its result at a time

	mu       sync.Mutex
	listener Listener
	session  Session

	results chan nodelink.SendStatus
	pongs   chan uint64
	done    chan struct{}
	readErr error
}

// NewModem starts reading frames from conn. The Modem owns conn from here on.
func NewModem(conn io.ReadWriteCloser, devEUI uint64, log logrus.FieldLogger) *Modem {
	m := &Modem{
		conn:    conn,
		devEUI:  devEUI,
		log:     log.WithField("tag", "LINK"),
		results: make(chan nodelink.SendStatus, 1),
		pongs:   make(chan uint64, 1),
		done:    make(chan struct{}),
	}
	go m.readLoop()
	return m
}

func (m *Modem) readLoop() {
	defer close(m.done)

	decoder := nodelink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := m.conn.Read(buf)
		for i := 0; i < n; i++ {
			packet, derr := decoder.DecodeByte(buf[i])
			if derr != nil {
				m.log.WithError(derr).Warn("dropping malformed frame")
				continue
			}
			if packet != nil {
				m.handle(packet)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.readErr = err
			}
			return
		}
	}
}

func (m *Modem) handle(p *nodelink.Packet) {
	if err := p.ParseError(); err != nil {
		m.log.WithError(err).Warn("undecodable frame body")
		return
	}
	if !p.FromModem() {
		m.log.WithField("address", fmt.Sprintf("%016X", p.Address())).Debug("ignoring frame not sent by modem")
		return
	}
	for _, anomaly := range nodelink.ValidatePacket(p) {
		m.log.Warn(anomaly.Error())
	}

	payload := p.PayloadMap()
	switch p.Type() {
	case nodelink.MsgSendResult:
		status, _ := nodelink.GetMapUint(payload, 0)
		select {
		case m.results <- nodelink.SendStatus(status):
		default:
			m.log.Debug("unsolicited SEND_RESULT")
		}

	case nodelink.MsgPingResponse:
		uptime, _ := nodelink.GetMapUint(payload, 0)
		select {
		case m.pongs <- uptime:
		default:
		}

	case nodelink.MsgJoinFinished:
		ok, _ := nodelink.GetMapBool(payload, 0)
		m.mu.Lock()
		m.session = Session{Joined: ok}
		if ok {
			if nwk, found := nodelink.GetMapBytes(payload, 1); found {
				copy(m.session.NwkSKey[:], nwk)
			}
			if app, found := nodelink.GetMapBytes(payload, 2); found {
				copy(m.session.AppSKey[:], app)
			}
			if addr, found := nodelink.GetMapUint(payload, 3); found {
				m.session.DevAddr = uint32(addr)
			}
		}
		l := m.listener
		m.mu.Unlock()
		if l != nil {
			l.OnJoinFinished(ok)
		}

	case nodelink.MsgDataReceived:
		dl := Downlink{}
		dl.Data, _ = nodelink.GetMapBytes(payload, 0)
		if rssi, ok := nodelink.GetMapInt(payload, 1); ok {
			dl.RSSI = int16(rssi)
		}
		if snr, ok := nodelink.GetMapInt(payload, 2); ok {
			dl.SNR = int8(snr)
		}
		if port, ok := nodelink.GetMapUint(payload, 3); ok {
			dl.Port = uint8(port)
		}
		if l := m.currentListener(); l != nil {
			l.OnDataReceived(dl)
		}

	case nodelink.MsgTxFinished:
		acked, _ := nodelink.GetMapBool(payload, 0)
		if l := m.currentListener(); l != nil {
			l.OnTransmitFinished(acked)
		}

	case nodelink.MsgErrorInvalidCmd:
		rejected, _ := nodelink.GetMapUint(payload, 0)
		m.log.WithField("type", nodelink.FormatMessageType(uint8(rejected))).Warn("modem rejected command")

	default:
		m.log.WithField("type", nodelink.FormatMessageType(p.Type())).Debug("ignoring unexpected frame")
	}
}

func (m *Modem) currentListener() Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

func (m *Modem) write(p *nodelink.Packet) error {
	select {
	case <-m.done:
		return ErrLinkClosed
	default:
	}
	frame, err := nodelink.NewEncoder().Encode(p)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", nodelink.FormatMessageType(p.Type()), err)
	}
	return nil
}

// SetListener implements Transport
func (m *Modem) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// Join implements Transport
func (m *Modem) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.session = Session{}
	m.mu.Unlock()
	return m.write(nodelink.NewJoinRequest(m.devEUI))
}

// Joined implements Transport
func (m *Modem) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Joined
}

// Session implements Transport
func (m *Modem) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// SendManaged implements Transport. A modem that does not answer within
// SendResultTimeout is treated as busy.
func (m *Modem) SendManaged(data []byte, retries uint8) SendResult {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	// Discard a late answer to a previous request
	select {
	case <-m.results:
	default:
	}

	if err := m.write(nodelink.NewSendManaged(m.devEUI, data, retries)); err != nil {
		if errors.Is(err, nodelink.ErrPayloadTooLarge) {
			return RejectedTooLarge
		}
		m.log.WithError(err).Warn("send failed")
		return Busy
	}

	timer := time.NewTimer(SendResultTimeout)
	defer timer.Stop()
	select {
	case status := <-m.results:
		return resultFromStatus(status)
	case <-timer.C:
		m.log.Warn("no SEND_RESULT from modem")
		return Busy
	case <-m.done:
		return Busy
	}
}

// SendP2P implements Transport
func (m *Modem) SendP2P(data []byte) {
	if err := m.write(nodelink.NewSendP2P(m.devEUI, data)); err != nil {
		m.log.WithError(err).Warn("p2p send failed")
	}
}

// Ping asks the modem for its uptime
func (m *Modem) Ping(ctx context.Context) (time.Duration, error) {
	select {
	case <-m.pongs:
	default:
	}
	if err := m.write(nodelink.NewPingRequest(m.devEUI)); err != nil {
		return 0, err
	}
	select {
	case uptime := <-m.pongs:
		return time.Duration(uptime) * time.Millisecond, nil
	case <-m.done:
		return 0, ErrLinkClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Done is closed when the link stops delivering frames
func (m *Modem) Done() <-chan struct{} {
	return m.done
}

// Err returns the read error that ended the link, if any. Valid after Done.
func (m *Modem) Err() error {
	<-m.done
	return m.readErr
}

// Close implements Transport
func (m *Modem) Close() error {
	err := m.conn.Close()
	<-m.done
	return err
}

func resultFromStatus(s nodelink.SendStatus) SendResult {
	switch s {
	case nodelink.SendAccepted:
		return Accepted
	case nodelink.SendRejectedTooLarge:
		return RejectedTooLarge
	default:
		return Busy
	}
}

func statusFromResult(r SendResult) nodelink.SendStatus {
	switch r {
	case Accepted:
		return nodelink.SendAccepted
	case RejectedTooLarge:
		return nodelink.SendRejectedTooLarge
	default:
		return nodelink.SendBusy
	}
}
