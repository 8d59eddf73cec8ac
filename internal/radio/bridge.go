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

// ServeModem plays the modem side of a nodelink stream: commands read from
// conn are executed on t and its events are written back. It returns when
// conn fails or ctx is cancelled; conn is closed either way.
func ServeModem(ctx context.Context, conn io.ReadWriteCloser, t Transport, log logrus.FieldLogger) error {
	b := &bridge{
		conn:  conn,
		t:     t,
		log:   log.WithField("tag", "MODEM"),
		start: time.Now(),
	}
	t.SetListener(b)
	defer t.SetListener(nil)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	decoder := nodelink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		for i := 0; i < n; i++ {
			packet, derr := decoder.DecodeByte(buf[i])
			if derr != nil {
				b.log.WithError(derr).Warn("dropping malformed frame")
				continue
			}
			if packet != nil {
				b.handle(ctx, packet)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

type bridge struct {
	conn    io.ReadWriteCloser
	t       Transport
	log     logrus.FieldLogger
	start   time.Time
	writeMu sync.Mutex
}

func (b *bridge) handle(ctx context.Context, p *nodelink.Packet) {
	if err := p.ParseError(); err != nil {
		b.log.WithError(err).Warn("undecodable command")
		b.send(nodelink.NewErrorInvalidCmd(p.Type()))
		return
	}

	log := b.log.WithField("deveui", fmt.Sprintf("%016X", p.Address()))
	payload := p.PayloadMap()

	switch p.Type() {
	case nodelink.MsgJoinRequest:
		log.Info("join requested")
		if err := b.t.Join(ctx); err != nil {
			log.WithError(err).Warn("join failed to start")
			b.send(nodelink.NewJoinFinished(false, [nodelink.SessionKeySize]byte{}, [nodelink.SessionKeySize]byte{}, 0))
		}

	case nodelink.MsgSendManaged:
		data, _ := nodelink.GetMapBytes(payload, 0)
		retries, _ := nodelink.GetMapUint(payload, 1)
		result := b.t.SendManaged(data, uint8(retries))
		log.WithFields(logrus.Fields{"bytes": len(data), "result": result}).Debug("managed uplink")
		b.send(nodelink.NewSendResult(statusFromResult(result)))

	case nodelink.MsgSendP2P:
		data, _ := nodelink.GetMapBytes(payload, 0)
		log.WithField("bytes", len(data)).Debug("p2p uplink")
		b.t.SendP2P(data)

	case nodelink.MsgPingRequest:
		b.send(nodelink.NewPingResponse(uint64(time.Since(b.start).Milliseconds())))

	default:
		log.WithField("type", nodelink.FormatMessageType(p.Type())).Warn("unknown command")
		b.send(nodelink.NewErrorInvalidCmd(p.Type()))
	}
}

func (b *bridge) send(p *nodelink.Packet) {
	frame, err := nodelink.NewEncoder().Encode(p)
	if err != nil {
		b.log.WithError(err).Error("encode failed")
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.conn.Write(frame); err != nil {
		b.log.WithError(err).Debug("write failed")
	}
}

func (b *bridge) OnJoinFinished(ok bool) {
	s := b.t.Session()
	b.send(nodelink.NewJoinFinished(ok, s.NwkSKey, s.AppSKey, s.DevAddr))
}

func (b *bridge) OnDataReceived(dl Downlink) {
	b.send(nodelink.NewDataReceived(dl.Data, dl.RSSI, dl.SNR, dl.Port))
}

func (b *bridge) OnTransmitFinished(acked bool) {
	b.send(nodelink.NewTxFinished(acked))
}
