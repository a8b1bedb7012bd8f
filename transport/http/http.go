// Package http provides the point-to-point HTTP transport. Each reactor runs
// an HTTP subscriber on its own address; publishers POST fragments straight
// to the destination endpoint carried in the message metadata.
package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/reactorflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// ErrNoEndpoint is returned when a message has no destination endpoint and no
// fallback publisher URL is configured.
var ErrNoEndpoint = errors.New("http transport: no destination endpoint")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates the HTTP transport. The subscriber's server starts with the
// first subscription so its routes exist before it accepts requests.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	fallback := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				target, err := TargetURL(topic, msg, fallback)
				if err != nil {
					return nil, err
				}
				return http.DefaultMarshalMessageFunc(target, msg)
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		cfg.GetHTTPServerAddress(),
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &server{Subscriber: subscriber, logger: logger},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// TargetURL is where a fragment for topic is POSTed: the destination endpoint
// from the metadata, or the fallback base URL.
func TargetURL(topic string, msg *message.Message, fallback string) (string, error) {
	path := "/" + strings.TrimPrefix(topic, "/")
	if endpoint := msg.Metadata.Get(transport.MetadataEndpoint); endpoint != "" {
		return "http://" + endpoint + path, nil
	}
	if fallback != "" {
		return strings.TrimRight(fallback, "/") + path, nil
	}
	return "", fmt.Errorf("%w for topic %s", ErrNoEndpoint, topic)
}

type httpServer interface {
	StartHTTPServer() error
}

// server mounts topics as routes and starts the listener once.
type server struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	start  sync.Once
}

func (s *server) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	out, err := s.Subscriber.Subscribe(ctx, "/"+strings.TrimPrefix(topic, "/"))
	if err != nil {
		return nil, err
	}
	if srv, ok := s.Subscriber.(httpServer); ok {
		s.start.Do(func() {
			go func() {
				if err := srv.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
					s.logger.Error("HTTP subscriber server stopped", err, nil)
				}
			}()
		})
	}
	return out, nil
}
