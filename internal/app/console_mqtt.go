package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/imu"
)

// RunConsoleMQTT prints every frame published under prefix until ctx is
// cancelled.
func RunConsoleMQTT(ctx context.Context, broker, clientID, prefix string, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: connected to MQTT broker at %s", broker)

	topic := strings.TrimSuffix(prefix, "/") + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		line, err := FormatFrame(msg.Topic(), msg.Payload())
		if err != nil {
			log.Warnf("console: %s: %v", msg.Topic(), err)
			return
		}
		fmt.Fprintln(out, line)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: subscribed to %s", topic)

	<-ctx.Done()
	log.Infoln("console: shutting down")
	client.Disconnect(250)
	return nil
}

// FormatFrame renders one frame as a console line.
func FormatFrame(topic string, payload []byte) (string, error) {
	f, data, err := decodeFrame(payload)
	if err != nil {
		return "", err
	}
	tag := fmt.Sprintf("[%-13s]", f.Sensor)
	switch f.Type {
	case FrameEvent:
		var ev imu.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", err
		}
		switch {
		case len(ev.Samples) > 0:
			s := ev.Samples[len(ev.Samples)-1]
			return fmt.Sprintf("%s n=%2d t=%d  x=%10.4f y=%10.4f z=%10.4f",
				tag, len(ev.Samples), ev.ReferenceTime, s.X, s.Y, s.Z), nil
		case ev.Sensor == imu.StepCounter:
			return fmt.Sprintf("%s steps=%d", tag, ev.Steps), nil
		case ev.Value != 0:
			return fmt.Sprintf("%s value=%.2f", tag, ev.Value), nil
		}
		return fmt.Sprintf("%s event t=%d", tag, ev.ReferenceTime), nil
	case FrameStatus:
		var st hub.Status
		if err := json.Unmarshal(data, &st); err != nil {
			return "", err
		}
		return fmt.Sprintf("[STATUS] state=%s sync=%s anchors=%d temp=%.1f°C irq_drops=%d",
			st.State, st.SyncMode, st.Anchors, st.Temperature, st.IRQDrops), nil
	case FrameReady:
		return "[STATUS] sensors ready", nil
	}
	return fmt.Sprintf("%s %s %s", tag, f.Type, strings.TrimSpace(string(data))), nil
}
