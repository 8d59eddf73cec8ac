// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/battnode/internal/config"
	"github.com/Thermoquad/battnode/internal/link"
	"github.com/Thermoquad/battnode/internal/radio"
)

var (
	netsimListen   string
	netsimPath     string
	netsimNakRate  float64
	netsimAuthUser string
)

var netsimCmd = &cobra.Command{
	Use:   "netsim",
	Short: "Serve a simulated LoRa network as a WebSocket modem",
	Long: `Start a WebSocket server that behaves like a radio modem.

Each client connection gets its own simulated network: joins complete after
sim.join_delay, uplinks take sim.airtime, confirmed uplinks are NAKed with
probability --nak-rate, and downlinks can be injected every Nth uplink.
Uplinks are only answered with ACK/NAK when --confirmed is set here too.

Point a node at it with:
  battnode run --url ws://localhost:8080/modem

With --auth-user set, clients must present HTTP Basic credentials; the
password is read from BATTNODE_PASSWORD or prompted.`,
	RunE: runNetsim,
}

func init() {
	rootCmd.AddCommand(netsimCmd)
	netsimCmd.Flags().StringVar(&netsimListen, "listen", ":8080", "Listen address")
	netsimCmd.Flags().StringVar(&netsimPath, "path", "/modem", "WebSocket endpoint path")
	netsimCmd.Flags().BoolVar(&runConfirmed, "confirmed", false, "Answer uplinks with ACK/NAK (match the node's --confirmed)")
	netsimCmd.Flags().Float64Var(&netsimNakRate, "nak-rate", 0, "Probability of NAK for confirmed uplinks (overrides config)")
	netsimCmd.Flags().StringVar(&netsimAuthUser, "auth-user", "", "Require HTTP Basic auth with this username")
}

func runNetsim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("nak-rate") {
		cfg.Sim.NakRate = netsimNakRate
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	password := ""
	if netsimAuthUser != "" {
		if password, err = GetPassword(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle(netsimPath, &modemHandler{
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		user:     netsimAuthUser,
		password: password,
	})

	server := &http.Server{
		Addr:              netsimListen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("battnode - Network Simulator\n")
	fmt.Printf("Listening: ws://%s%s\n", netsimListen, netsimPath)
	fmt.Printf("Confirmed: %v | NAK rate: %.2f | Join delay: %s | Airtime: %s\n",
		cfg.Radio.Confirmed, cfg.Sim.NakRate, cfg.Sim.JoinDelay, cfg.Sim.Airtime)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// modemHandler upgrades each request and serves a fresh simulated network
type modemHandler struct {
	cfg      *config.Config
	log      *logrus.Logger
	ctx      context.Context
	user     string
	password string

	upgrader websocket.Upgrader
}

func (h *modemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.user != "" && !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="battnode"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	log := h.log.WithField("remote", r.RemoteAddr)
	log.Info("Modem client connected")

	sim := radio.NewSim(h.cfg.SimConfig(), log)
	defer sim.Close()

	err = radio.ServeModem(h.ctx, link.NewWebSocketConnection(ws), sim, log)
	if err != nil && !errors.Is(err, link.ErrConnectionClosed) && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Modem client dropped")
		return
	}
	log.Info("Modem client disconnected")
}

func (h *modemHandler) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.password)) == 1
	return userOK && passOK
}
