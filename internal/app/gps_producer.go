package app

import (
	"encoding/json"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes every fix as JSON on TOPIC_GPS. The FMU server picks them up as
// its position-hold reference.
func RunGPSProducer() error {
	cfg := config.Get()

	client, err := connectMQTT("gps", cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("gps: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := gps.NewReader(port)
	for {
		fix, err := reader.Next()
		if err != nil {
			log.Printf("gps: read error: %v", err)
			return err
		}

		payload, err := json.Marshal(fix)
		if err != nil {
			log.Printf("gps: JSON marshal error: %v", err)
			continue
		}

		token := client.Publish(cfg.TopicGPS, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("gps: publish error: %v", token.Error())
			continue
		}

		if !fix.Valid() {
			log.Printf("gps: void fix at %s (%d satellites)", fix.Time, fix.Satellites)
		}
	}
}
