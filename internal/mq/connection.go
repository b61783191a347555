package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
//   - Переподключение с экспоненциальной задержкой (retry-go)
//   - Потокобезопасный доступ к каналу публикации
//   - Отдельные каналы для consumers (OpenChannel)
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// reconnected закрывается после каждого переподключения и заменяется новым
	reconnected chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger,
		closedCh:    make(chan struct{}),
		reconnected: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		channel := c.channel
		c.mu.RUnlock()

		if conn == nil || channel == nil {
			time.Sleep(time.Second)
			continue
		}

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
		notifyChannel := channel.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
			c.reconnect()
		case err := <-notifyChannel:
			if c.IsClosed() {
				return
			}
			if conn.IsClosed() {
				c.reconnect()
				continue
			}
			c.logger.Warn("publish channel closed", "error", err)
			if err := c.reopenChannel(conn); err != nil {
				c.logger.Warn("reopen channel failed", "error", err)
				// Следующая итерация увидит закрытое соединение
				time.Sleep(time.Second)
			}
		}
	}
}

// reopenChannel заменяет канал публикации на новый канал того же соединения.
func (c *Connection) reopenChannel(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn != conn {
		ch.Close()
		return nil
	}
	c.channel = ch

	c.logger.Info("publish channel reopened")
	return nil
}

// errClosed останавливает retry после Close.
var errClosed = errors.New("connection closed by owner")

// reconnect переподключается с экспоненциальной задержкой (1s .. 30s).
func (c *Connection) reconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closedCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := retry.Do(
		func() error {
			if c.IsClosed() {
				return retry.Unrecoverable(errClosed)
			}
			return c.connect()
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reconnect failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		c.logger.Info("reconnect aborted", "error", err)
		return
	}

	c.logger.Info("reconnected to RabbitMQ")

	c.notifyReconnect()
}

// notifyReconnect будит всех, кто ждёт на ReconnectNotify.
func (c *Connection) notifyReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.reconnected)
	c.reconnected = make(chan struct{})
}

// Channel возвращает текущий AMQP канал публикации.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// OpenChannel открывает новый канал на текущем соединении.
// Consumers используют собственный канал, чтобы Qos не влиял на публикацию.
func (c *Connection) OpenChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("no connection available")
	}
	return conn.Channel()
}

// ReconnectNotify возвращает канал, который закроется при следующем переподключении.
// Канал нужно получить до попытки, исход которой будет ожидаться.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// IsClosed проверяет, был ли вызван Close.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом публикации.
func (c *Connection) WithChannel(fn func(ch *amqp.Channel) error) error {
	ch := c.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	return fn(ch)
}
