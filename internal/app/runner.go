// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/sensorhub/internal/codec"
	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
	"github.com/relabs-tech/sensorhub/internal/transport"
)

const statusInterval = 5 * time.Second

// HubOptions builds the hub options from the configuration.
func HubOptions(cfg *config.SensorHubOpt) (hub.Options, error) {
	var opts hub.Options
	var err error
	if opts.Magnetometer, err = sensors.NewMagnetometer(cfg.Slaves.Magnetometer); err != nil {
		return opts, err
	}
	if opts.Barometer, err = sensors.NewBarometer(cfg.Slaves.Barometer); err != nil {
		return opts, err
	}
	if opts.AccelRotation, err = codec.ParseMatrix(cfg.Rotation.Accel); err != nil {
		return opts, fmt.Errorf("rotation.accel: %w", err)
	}
	if opts.GyroRotation, err = codec.ParseMatrix(cfg.Rotation.Gyro); err != nil {
		return opts, fmt.Errorf("rotation.gyro: %w", err)
	}
	if opts.MagnRotation, err = codec.ParseMatrix(cfg.Rotation.Magn); err != nil {
		return opts, fmt.Errorf("rotation.magn: %w", err)
	}
	opts.BootDelay = cfg.BootDelay()
	opts.SyncMinSamples = cfg.Hub.SyncMinSamples
	opts.SyncMaxSamples = cfg.Hub.SyncMaxSamples
	return opts, nil
}

// ApplyPresets restores the stored calibration and starts the configured
// streams. Refused requests are logged and skipped.
func ApplyPresets(ctl Controller, cfg *config.SensorHubOpt) {
	for s, c := range map[imu.Sensor][]int32{imu.Accel: cfg.Calibration.Accel, imu.Gyro: cfg.Calibration.Gyro} {
		if len(c) != 3 {
			continue
		}
		d := imu.CalibrationData{HW: [3]int32{c[0], c[1], c[2]}}
		if !ctl.SetCalibrationData(s, d) {
			log.Warnf("presets: %s calibration refused", s)
		}
	}
	for _, st := range cfg.Streams {
		s, err := imu.ParseSensor(st.Sensor)
		if err != nil {
			log.Warnf("presets: %v", err)
			continue
		}
		if !ctl.SetPower(s, true) {
			log.Warnf("presets: %s refused power on", s)
			continue
		}
		if !ctl.SetRate(s, sensors.HzOf(st.RateHz), st.Latency()) {
			log.Warnf("presets: %s refused %.3f Hz", s, st.RateHz)
			continue
		}
		log.Infof("presets: %s streaming at %.3f Hz", s, st.RateHz)
	}
}

// Run opens the device, starts the hub and serves MQTT and the API until
// ctx is cancelled.
func Run(ctx context.Context, cfg *config.SensorHubOpt) error {
	opts, err := HubOptions(cfg)
	if err != nil {
		return err
	}

	bus, err := transport.OpenPeriph(cfg.SPI.Device, cfg.SPI.SpeedHz)
	if err != nil {
		return err
	}
	defer bus.Close()

	var irq *transport.PeriphIRQ
	if cfg.Interrupt.Pin != "" {
		if irq, err = transport.OpenPeriphIRQ(cfg.Interrupt.Pin); err != nil {
			return err
		}
		opts.IRQLevel = irq.High
	} else {
		log.Warnln("no interrupt pin configured, FIFO is only read on flush")
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Infof("connected to MQTT broker at %s", cfg.MQTT.Broker)

	sink := NewMQTTSink(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QueueSize)
	h := hub.New(transport.NewBatch(bus), sink, opts)
	sink.OnReady = func() { ApplyPresets(h, cfg) }

	ctl := &ControlHandler{Hub: h, Streams: sink, Mag: opts.Magnetometer, Baro: opts.Barometer}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sink.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := h.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if irq != nil {
		g.Go(func() error {
			transport.WatchIRQ(ctx, irq, h.Interrupt)
			return nil
		})
	}
	g.Go(func() error {
		return ServeAPI(ctx, cfg.API.Interface, cfg.API.Port, NewAPIMux(ctl, sink))
	})
	g.Go(func() error {
		t := time.NewTicker(statusInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				sink.PublishStatus(h.Status())
			}
		}
	})
	return g.Wait()
}
