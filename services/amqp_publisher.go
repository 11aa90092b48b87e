package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"livescore-service/config"
	"livescore-service/logger"
)

// AMQPPublisher 把比赛更新发布到 fanout exchange,
// 供下游服务 (统计/通知) 订阅。连接断开时自动重连,
// 未连接期间的更新直接丢弃 (订阅方通过 revision 检测并用轮询补齐)。
type AMQPPublisher struct {
	config  *config.Config
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan bool
}

// NewAMQPPublisher 创建 AMQPPublisher 实例
func NewAMQPPublisher(cfg *config.Config) *AMQPPublisher {
	return &AMQPPublisher{
		config: cfg,
		done:   make(chan bool),
	}
}

// Start 建立 AMQP 连接并声明 exchange,启动重连监控
func (p *AMQPPublisher) Start() error {
	if err := p.connect(); err != nil {
		return err
	}

	go p.monitorConnection()
	return nil
}

// connect 建立连接和 channel
func (p *AMQPPublisher) connect() error {
	logger.Printf("[AMQPPublisher] Connecting to %s...", p.config.AMQPURL)

	conn, err := amqp.Dial(p.config.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// 声明 fanout exchange
	if err := channel.ExchangeDeclare(
		p.config.AMQPExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()

	logger.Printf("[AMQPPublisher] Connected, exchange: %s", p.config.AMQPExchange)
	return nil
}

// monitorConnection 监听连接关闭事件并重连
func (p *AMQPPublisher) monitorConnection() {
	for {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()

		if conn == nil {
			return
		}

		closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-p.done:
			return
		case amqpErr := <-closeChan:
			if amqpErr == nil {
				// 正常关闭
				return
			}
			logger.Errorf("[AMQPPublisher] Connection lost: %v. Reconnecting...", amqpErr)
		}

		// 指数退避重连,上限 60 秒
		backoff := 5 * time.Second
		for {
			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}

			if err := p.connect(); err != nil {
				logger.Errorf("[AMQPPublisher] Reconnect failed: %v", err)
				backoff *= 2
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
				continue
			}
			break
		}
	}
}

// BroadcastMatchUpdate 实现 Broadcaster 接口。
// 发布失败只记日志,不影响写路径。
func (p *AMQPPublisher) BroadcastMatchUpdate(update *MatchUpdate) {
	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()

	if channel == nil {
		logger.Printf("[AMQPPublisher] Not connected. Update for match %s dropped.", update.Match.ID)
		return
	}

	body, err := json.Marshal(update)
	if err != nil {
		logger.Errorf("[AMQPPublisher] Failed to marshal update: %v", err)
		return
	}

	err = channel.Publish(
		p.config.AMQPExchange,
		update.Match.ID, // routing key (fanout 下仅用于排查)
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		logger.Errorf("[AMQPPublisher] Failed to publish update for match %s: %v", update.Match.ID, err)
	}
}

// Stop 关闭连接
func (p *AMQPPublisher) Stop() {
	logger.Println("[AMQPPublisher] Stopping...")
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.channel = nil
	}
}
