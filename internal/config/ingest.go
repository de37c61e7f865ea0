package config

import "time"

// IngestConfig describes the device-facing channels.  Status strings arrive
// on the AMQP queue and/or the MQTT topic; switch commands leave on the
// matching command queue/topic.  An empty MQTTBroker disables MQTT and an
// empty AMQPURL disables the broker transport.
type IngestConfig struct {
	AMQPURL       string
	StatusQueue   string
	CommandQueue  string
	MQTTBroker    string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	StatusTopic   string
	CommandTopic  string
	MQTTQoS       byte
	RatePerSecond float64 // per-device status messages allowed per second
	Burst         int
	LayoutTTL     time.Duration // how long a resolved device layout is reused
}

// LoadIngestConfig reads the ingestion settings.  RABBITMQ_URL wins over
// AMQP_URL; when neither is set the broker transport stays off.
func LoadIngestConfig() IngestConfig {
	qos := envInt("MQTT_QOS", 1)
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return IngestConfig{
		AMQPURL:       envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		StatusQueue:   envStr("INGEST_QUEUE", "esp.status"),
		CommandQueue:  envStr("COMMAND_QUEUE", "esp.command"),
		MQTTBroker:    envStr("MQTT_BROKER", ""),
		MQTTClientID:  envStr("MQTT_CLIENT_ID", "switchstack-api"),
		MQTTUsername:  envStr("MQTT_USERNAME", ""),
		MQTTPassword:  envStr("MQTT_PASSWORD", ""),
		StatusTopic:   envStr("MQTT_STATUS_TOPIC", "esp/status"),
		CommandTopic:  envStr("MQTT_COMMAND_TOPIC", "esp/command"),
		MQTTQoS:       byte(qos),
		RatePerSecond: envFloat("INGEST_RATE_PER_SEC", 20),
		Burst:         envInt("INGEST_BURST", 40),
		LayoutTTL:     envDur("INGEST_CACHE_TTL", 5*time.Minute),
	}
}
