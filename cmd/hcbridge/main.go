// Command hcbridge wires the configuration, device Supervisors, and MQTT
// Bridge together and runs until terminated. CLI flag parsing itself is
// out of scope (spec.md §1); the only flag accepted is an optional path to
// a Viper-readable config file, with everything else bound from
// HCBRIDGE_-prefixed environment variables (spec.md §6).
//
// Grounded on the teacher's main.go for the shape of "construct the
// dependency graph, then drive it" (certusone-yubihsm-go/main.go), though
// every line of behavior is new: the teacher dials one HSM connector and
// issues three fixed commands, this wires N device supervisors and an
// MQTT bridge and runs them to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/hcpy-go/bridge/internal/bridge"
	"github.com/hcpy-go/bridge/internal/config"
	"github.com/hcpy-go/bridge/internal/supervisor"
)

func main() {
	configFile := flag.String("config", "", "optional Viper-readable config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(*configFile, log); err != nil {
		log.WithError(err).Fatal("hcbridge exited")
	}
}

func run(configFile string, log *logrus.Logger) error {
	app, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if app.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	devices, err := config.LoadDevices(app.DevicesFile)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	deviceNames := make([]string, 0, len(devices))
	for _, d := range devices {
		deviceNames = append(deviceNames, d.Name)
	}

	// br is filled in after the client connects; the reconnect handler
	// closes over the pointer so a later reconnect can resubscribe
	// (spec.md's supplemented MQTT reconnect re-subscription feature).
	var br *bridge.Bridge
	reconnectHandler := func(mqtt.Client) {
		if br != nil {
			if err := br.Start(deviceNames); err != nil {
				log.WithError(err).Warn("failed to resubscribe after reconnect")
			}
		}
	}

	client, err := connectMQTT(app, log, reconnectHandler)
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	defer client.Disconnect(250)

	reg := bridge.NewRegistry()
	br = bridge.New(client, app.MQTTPrefix, reg, log.WithField("component", "bridge"))

	if err := br.Start(deviceNames); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, d := range devices {
		d := d
		sv := supervisor.New(d, br, log.WithField("component", "supervisor"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			sv.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	return nil
}

// connectMQTT builds and connects the paho client. Constructing and
// connecting the client is the one piece spec.md §1 calls out as out of
// scope ("the MQTT client library wiring"); this is the minimal glue
// needed to hand bridge.Bridge a live mqtt.Client.
func connectMQTT(app *config.App, log *logrus.Logger, onConnect mqtt.OnConnectHandler) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", app.MQTTHost, app.MQTTPort))
	opts.SetClientID(app.MQTTClient)
	if app.MQTTUser != "" {
		opts.SetUsername(app.MQTTUser)
		opts.SetPassword(app.MQTTPass)
	}
	opts.SetWill(app.MQTTPrefix+"LWT", "offline", 1, true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return client, nil
}
