package app

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/storage/memory"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	if producer := initKafkaProducer(nil, logger); producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	logger := log.WithField("test", "kafka")

	// Порт 1 на loopback закрыт, подключение отклоняется сразу.
	if producer := initKafkaProducer([]string{"127.0.0.1:1"}, logger); producer != nil {
		closeKafka(producer, logger)
		t.Fatal("expected nil producer for unreachable broker")
	}
}

func TestCloseKafka_Nil(_ *testing.T) {
	// Не должно паниковать
	closeKafka(nil, log.WithField("test", "kafka-close"))
}

func TestNewOutboxWorker_DisabledWithoutProducer(t *testing.T) {
	worker := newOutboxWorker(DefaultConfig(), memory.NewOutboxRepository(), nil, nil, log.WithField("test", "outbox"))
	if worker != nil {
		t.Fatal("expected no worker without kafka producer")
	}
}
