//go:build rp2040

// Command sensorhub_mcu runs the sensor hub on an RP2040 board and prints
// every frame on the USB serial console.
//
// Build/flash (TinyGo):
//
//	tinygo flash -target pico ./cmd/sensorhub_mcu
//
// Wiring: LSM6DSM on SPI0 default pins, CS on GP17, INT1 on GP20.
package main

import (
	"context"
	"os"
	"time"

	"machine"

	"github.com/relabs-tech/sensorhub/internal/imu"
	"github.com/relabs-tech/sensorhub/internal/mcu"
	"github.com/relabs-tech/sensorhub/internal/sensors"
)

const (
	csPin  = machine.GP17
	intPin = machine.GP20
)

func main() {
	// Give the USB console time to attach.
	time.Sleep(3 * time.Second)
	println("== sensorhub: LSM6DSM on SPI0 ==")

	if err := machine.SPI0.Configure(machine.SPIConfig{
		Frequency: 10_000_000,
		Mode:      3,
		SCK:       machine.SPI0_SCK_PIN,
		SDO:       machine.SPI0_SDO_PIN,
		SDI:       machine.SPI0_SDI_PIN,
	}); err != nil {
		println("spi:", err.Error())
		return
	}
	csPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	intPin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})

	h := mcu.New(mcu.Board{
		SPI:      machine.SPI0,
		CS:       csPin,
		IRQLevel: intPin.Get,
		Out:      os.Stdout,
		Streams: []mcu.Stream{
			{Sensor: imu.Accel, Rate: sensors.ImuRates[7], Latency: 100 * time.Millisecond},
			{Sensor: imu.Gyro, Rate: sensors.ImuRates[7], Latency: 100 * time.Millisecond},
		},
	})
	if err := intPin.SetInterrupt(machine.PinRising, func(machine.Pin) { h.Interrupt() }); err != nil {
		println("int1:", err.Error())
	}

	if err := h.Run(context.Background()); err != nil {
		println("hub:", err.Error())
	}
}
