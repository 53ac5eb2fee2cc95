package transport

import "tinygo.org/x/drivers"

// ChipSelect is a GPIO output driving the device CS line. machine.Pin
// satisfies it on TinyGo targets.
type ChipSelect interface {
	High()
	Low()
}

// TinyGoBus frames transfers on a TinyGo SPI peripheral with a software
// chip select, for MCU builds where the host owns CS.
type TinyGoBus struct {
	spi drivers.SPI
	cs  ChipSelect
}

func NewTinyGoBus(spi drivers.SPI, cs ChipSelect) *TinyGoBus {
	cs.High()
	return &TinyGoBus{spi: spi, cs: cs}
}

func (b *TinyGoBus) Tx(w, r []byte) error {
	b.cs.Low()
	err := b.spi.Tx(w, r)
	b.cs.High()
	return err
}
