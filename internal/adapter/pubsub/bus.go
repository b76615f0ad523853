package pubsub

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	DriverAMQP      = "amqp"
	DriverGoChannel = "gochannel"
	DriverNone      = "none"
)

// BusConfig selects the transport shared by all nodes.
type BusConfig struct {
	Driver string
	URL    string
	NodeID string
}

// Bus bundles the publisher and subscriber of one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewBus connects to the configured transport.
//
// With AMQP every topic is a fanout exchange and every node binds its own
// queue (topic name suffixed with the node id), so each node sees every event
// once. The gochannel driver does the same inside a single process.
func NewBus(cfg BusConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	switch cfg.Driver {
	case DriverAMQP:
		amqpCfg := amqp.NewDurablePubSubConfig(cfg.URL, amqp.GenerateQueueNameTopicNameWithSuffix(cfg.NodeID))

		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		return &Bus{Publisher: pub, Subscriber: sub}, nil

	case DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{Publisher: ch, Subscriber: ch}, nil

	default:
		return nil, fmt.Errorf("pubsub: unsupported driver %q", cfg.Driver)
	}
}

func (b *Bus) Close() error {
	if any(b.Publisher) == any(b.Subscriber) {
		return b.Publisher.Close()
	}
	return errors.Join(b.Publisher.Close(), b.Subscriber.Close())
}
