package propagation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// NOTIFY 负载上限
const maxNotifyPayload = 7900

// PostgresBackplane 基于 PostgreSQL LISTEN/NOTIFY
type PostgresBackplane struct {
	db       *sql.DB
	dsn      string
	channel  string
	logger   logrus.FieldLogger
	listener *pq.Listener
}

// NewPostgresBackplane 创建 Backplane，db 用于 NOTIFY，dsn 用于独立的监听连接
func NewPostgresBackplane(db *sql.DB, dsn, channel string, logger logrus.FieldLogger) *PostgresBackplane {
	return &PostgresBackplane{db: db, dsn: dsn, channel: channel, logger: logger}
}

// Publish 通过 pg_notify 发布
func (p *PostgresBackplane) Publish(ctx context.Context, evt ChangeEvent) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if len(data) > maxNotifyPayload {
		// 过大时只发送标识，接收方拿不到新值，但仍能感知变更
		evt.NewValue = nil
		if data, err = encodeEvent(evt); err != nil {
			return err
		}
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, string(data)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", p.channel, err)
	}
	return nil
}

// Listen 监听频道，连接断开后由 pq.Listener 自动重连
func (p *PostgresBackplane) Listen(ctx context.Context, handler func(ChangeEvent)) error {
	p.listener = pq.NewListener(p.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.WithError(err).WithField("event", ev).Warn("postgres listener event")
		}
	})
	if err := p.listener.Listen(p.channel); err != nil {
		p.listener.Close()
		return fmt.Errorf("listen %s: %w", p.channel, err)
	}

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.listener.Close()
		case n := <-p.listener.Notify:
			// 重连后收到 nil
			if n == nil {
				continue
			}
			evt, err := decodeEvent([]byte(n.Extra))
			if err != nil {
				p.logger.WithError(err).Warn("dropping malformed notification")
				continue
			}
			handler(evt)
		case <-ping.C:
			go func() {
				if err := p.listener.Ping(); err != nil {
					p.logger.WithError(err).Debug("postgres listener ping failed")
				}
			}()
		}
	}
}

// Close 监听连接在 Listen 退出时关闭，这里无需处理
func (p *PostgresBackplane) Close() error {
	return nil
}
