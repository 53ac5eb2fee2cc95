// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !tinygo

package transport

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphBus is a Linux spidev connection opened through periph.io.
type PeriphBus struct {
	name string
	port spi.PortCloser
	conn spi.Conn
}

// OpenPeriph initializes the periph host drivers and connects to the SPI
// device in mode 3, which the LSM6DSM requires.
func OpenPeriph(device string, speedHz int64) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s: periph host init: %w", device, err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("%s: SPI open: %w", device, err)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode3, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%s: SPI connect at %d Hz: %w", device, speedHz, err)
	}

	log.Infof("%s: SPI connected (mode 3, %d Hz)", device, speedHz)
	return &PeriphBus{name: device, port: port, conn: conn}, nil
}

func (b *PeriphBus) Tx(w, r []byte) error {
	if err := b.conn.Tx(w, r); err != nil {
		return fmt.Errorf("%s: SPI tx: %w", b.name, err)
	}
	return nil
}

func (b *PeriphBus) Close() error { return b.port.Close() }

// IRQLine is the device interrupt output as seen by the host.
type IRQLine interface {
	WaitForEdge(timeout time.Duration) bool
	High() bool
}

// PeriphIRQ watches a GPIO through periph.io edge detection.
type PeriphIRQ struct {
	pin gpio.PinIO
}

// OpenPeriphIRQ configures pin as a pulled-down input with rising edge
// detection.
func OpenPeriphIRQ(name string) (*PeriphIRQ, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("INT1: pin %q not found", name)
	}
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("INT1: configure %s: %w", name, err)
	}
	return &PeriphIRQ{pin: pin}, nil
}

func (p *PeriphIRQ) WaitForEdge(timeout time.Duration) bool { return p.pin.WaitForEdge(timeout) }
func (p *PeriphIRQ) High() bool                             { return p.pin.Read() == gpio.High }

// WatchIRQ calls notify on every detected edge until ctx is cancelled.
// notify must not block.
func WatchIRQ(ctx context.Context, line IRQLine, notify func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if line.WaitForEdge(100 * time.Millisecond) {
			notify()
		}
	}
}
