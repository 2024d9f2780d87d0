package main

import (
	"log"

	"github.com/relabs-tech/flight_core/internal/app"
	"github.com/relabs-tech/flight_core/internal/config"
)

func main() {
	log.Println("starting flight-core ESC bridge (MQTT → PWM)")

	if err := config.InitGlobal("flight_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunESCBridge(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
