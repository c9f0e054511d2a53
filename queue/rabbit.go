// Package queue connects the worker to RabbitMQ. Requests arrive on two
// durable queues bound to a direct exchange; info answers go back to the
// same exchange.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"rtiler/service"
)

// Queue name suffixes, appended to the exchange name
const (
	tileQueueSuffix = ".tile-create-request"
	infoQueueSuffix = ".info-request"
)

//Config broker connection settings
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Exchange           string
	ConnectionAttempts int
	RetryDelay         time.Duration
	SocketTimeout      time.Duration
	Prefetch           int
}

//URL amqp address of the broker
func (c Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/",
	}
	return u.String()
}

//TileQueue name of the tile request queue
func (c Config) TileQueue() string { return c.Exchange + tileQueueSuffix }

//InfoQueue name of the info request queue
func (c Config) InfoQueue() string { return c.Exchange + infoQueueSuffix }

//Handler processes message bodies
type Handler interface {
	HandleTileCreate(ctx context.Context, body []byte) error
	HandleInfo(ctx context.Context, body []byte) ([]byte, error)
}

//Channel the part of an amqp channel the worker uses
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

//Declare sets up the exchange and both request queues
func Declare(ch Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	bindings := []struct{ queue, key string }{
		{cfg.InfoQueue(), service.KeyInfoRequest},
		{cfg.TileQueue(), service.KeyTileCreateRequest},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

//Worker consumes both request queues until its context ends
type Worker struct {
	cfg     Config
	handler Handler
	id      string
	log     *log.Entry
}

//NewWorker worker feeding handler
func NewWorker(cfg Config, handler Handler) *Worker {
	id := shortid.MustGenerate()
	return &Worker{
		cfg:     cfg,
		handler: handler,
		id:      id,
		log:     log.WithFields(log.Fields{"component": "queue", "worker": id}),
	}
}

//Run consumes until ctx is done, reconnecting after any broker failure
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.log.Errorf("occur error in rabbit session: %v, reconnecting in %s", err, w.cfg.SocketTimeout)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.SocketTimeout):
		}
	}
}

//Dial connects with the configured attempts and retry delay
func Dial(ctx context.Context, cfg Config) (*amqp.Connection, error) {
	attempts := max(cfg.ConnectionAttempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.DialConfig(cfg.URL(), amqp.Config{
			Dial:      amqp.DefaultDial(cfg.SocketTimeout),
			Heartbeat: 10 * time.Second,
		})
		if err == nil {
			return conn, nil
		}
		log.Warnf("connect to rabbit %s:%d (attempt %d/%d): %v", cfg.Host, cfg.Port, i, attempts, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return nil, err
}

func (w *Worker) session(ctx context.Context) error {
	w.log.Info("connecting to rabbit ...")
	conn, err := Dial(ctx, w.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := Declare(ch, w.cfg); err != nil {
		return err
	}
	if err := ch.Qos(max(w.cfg.Prefetch, 1), 0, false); err != nil {
		return err
	}
	infos, err := ch.Consume(w.cfg.InfoQueue(), w.id+"-info", false, false, false, false, nil)
	if err != nil {
		return err
	}
	w.log.Infof("listening to %s messages ...", service.KeyInfoRequest)
	tileDeliveries, err := ch.Consume(w.cfg.TileQueue(), w.id+"-tile", false, false, false, false, nil)
	if err != nil {
		return err
	}
	w.log.Infof("listening to %s messages ...", service.KeyTileCreateRequest)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-closed:
			return fmt.Errorf("connection closed: %v", e)
		case d, ok := <-infos:
			if !ok {
				return errors.New("info deliveries closed")
			}
			w.handleInfo(ctx, ch, d)
		case d, ok := <-tileDeliveries:
			if !ok {
				return errors.New("tile deliveries closed")
			}
			w.handleTile(ctx, d)
		}
	}
}

// handleTile failures are logged by the handler; the delivery is acked
// either way so a broken request is not redelivered forever
func (w *Worker) handleTile(ctx context.Context, d amqp.Delivery) {
	_ = w.handler.HandleTileCreate(ctx, d.Body)
	ack(w.log, d)
}

func (w *Worker) handleInfo(ctx context.Context, ch Channel, d amqp.Delivery) {
	defer ack(w.log, d)
	out, err := w.handler.HandleInfo(ctx, d.Body)
	if err != nil {
		return
	}
	if err := Publish(ctx, ch, w.cfg.Exchange, service.KeyInfoResponse, d.CorrelationId, out); err != nil {
		w.log.Errorf("publish %s: %v", service.KeyInfoResponse, err)
	}
}

//Publish sends a persistent JSON message
func Publish(ctx context.Context, ch Channel, exchange, key, correlationID string, body []byte) error {
	return ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Timestamp:     time.Now(),
		Body:          body,
	})
}

func ack(l *log.Entry, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		l.Warnf("ack delivery %d: %v", d.DeliveryTag, err)
	}
}
