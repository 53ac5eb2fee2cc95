package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/cmd"
)

func main() {
	log.Infoln("starting sensorhub console (MQTT subscriber)")

	c := cmd.NewConsoleCmd()
	c.Use = "console_mqtt"
	if err := fang.Execute(context.Background(), c); err != nil {
		os.Exit(1)
	}
}
