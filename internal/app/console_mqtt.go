package app

import (
	"fmt"
	"log"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/status"
)

// RunConsoleMQTT prints one line per published flight status until
// interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT("console", cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	err = status.Subscribe(client, cfg.TopicStatus,
		func(s status.Status) {
			fmt.Println(s.Line())
		},
		func(err error) {
			log.Printf("console: %v", err)
		},
	)
	if err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	waitForSignal()
	log.Println("console: shutting down")
	return nil
}
